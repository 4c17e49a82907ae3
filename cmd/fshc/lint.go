package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fshforge/fsh/internal/executor"
	"github.com/fshforge/fsh/internal/lint"
	"github.com/fshforge/fsh/internal/lint/pattern"
)

func newLintCommand(logger *slog.Logger) *cobra.Command {
	flags := &sharedFlags{}
	var patternRulesPath string

	cmd := &cobra.Command{
		Use:   "lint [flags] file.fsh...",
		Short: "Run the diagnostic rule engine over FSH definitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			return runLint(cmd.Context(), logger, flags, patternRulesPath, paths, cmd.OutOrStdout())
		},
	}
	registerSharedFlags(cmd, flags)
	cmd.Flags().StringVar(&patternRulesPath, "pattern-rules", "", "path to a YAML file of additional GritQL-style pattern rules")
	return cmd
}

// fshRules is the FSH-native rule set fshc's lint command runs. Rules that
// need a resolved parent StructureDefinition (correctness/profile-parent-valid,
// correctness/binding-strength-weakening) run separately, inside
// executor.processFile's unconditional semantic.Run pass, and need no entry
// here. extra carries pattern.Rule instances loaded from --pattern-rules,
// which satisfy lint.Rule the same way the hand-written rules do.
func fshRules(extra []*pattern.Rule) *lint.Runner {
	rules := []lint.Rule{
		lint.BindingStrengthRequiredRule{},
		lint.ExtensionContextMissingRule{},
		lint.SliceNameCollisionRule{},
		lint.MustSupportPropagationRule{},
	}
	for _, r := range extra {
		rules = append(rules, r)
	}
	return lint.NewRunner(rules...)
}

func runLint(ctx context.Context, logger *slog.Logger, flags *sharedFlags, patternRulesPath string, paths []string, stdout io.Writer) error {
	resolver, _ := loadResolver(logger, flags)

	var extra []*pattern.Rule
	if patternRulesPath != "" {
		loaded, err := pattern.LoadFile(patternRulesPath)
		if err != nil {
			return fmt.Errorf("lint: %w", err)
		}
		extra = loaded
	}

	ex := executor.New(
		executor.WithWorkers(flags.workers),
		executor.WithResolver(resolver),
		executor.WithRuleEngine(fshRules(extra)),
	)
	batch := ex.Run(ctx, paths)

	for _, r := range batch.Results {
		printDiagnostics(stdout, r)
	}
	summarize(stdout, batch)
	if batch.HasErrors() {
		return exitError("lint: one or more files reported an error-severity diagnostic")
	}
	return nil
}
