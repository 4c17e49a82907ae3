package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fshforge/fsh/internal/config"
	"github.com/fshforge/fsh/internal/resolve"
)

// sharedFlags are accepted by every subcommand that drives the pipeline
// against a project manifest.
type sharedFlags struct {
	configPath string
	cacheDir   string
	workers    int
}

func newRootCommand(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "fshc",
		Short:         "Compile and decompile FHIR Shorthand definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newCompileCommand(logger))
	root.AddCommand(newLintCommand(logger))
	root.AddCommand(newDecompileCommand(logger))
	return root
}

func registerSharedFlags(cmd *cobra.Command, flags *sharedFlags) {
	cmd.Flags().StringVar(&flags.configPath, "config", "sushi-config.yaml", "path to the project manifest")
	cmd.Flags().StringVar(&flags.cacheDir, "cache-dir", "", "FHIR package cache directory backing declared dependencies")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "worker pool size (0 selects runtime.NumCPU())")
}

// loadResolver builds the C4 canonical resolver cascade (installed-package
// session, optionally seeded from a manifest's declared dependencies) that
// semantic analysis and export consult for cross-reference resolution. A
// manifest that can't be loaded is not fatal here: fshc can still run
// against bare FSH files with no canonical context, trading resolution
// failures for the ability to lint a file with no sushi-config.yaml at all.
func loadResolver(logger *slog.Logger, flags *sharedFlags) (resolve.Fishable, *config.Configuration) {
	store, err := resolve.OpenPackageStore("")
	if err != nil {
		logger.Warn("failed to open package store; proceeding without a resolver", slog.Any("error", err))
		return nil, nil
	}
	session, err := resolve.NewSession(store, 0)
	if err != nil {
		logger.Warn("failed to create resolver session; proceeding without a resolver", slog.Any("error", err))
		return nil, nil
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logger.Debug("no usable project manifest; proceeding with an empty resolver", slog.String("path", flags.configPath), slog.Any("error", err))
		return session, nil
	}
	if flags.cacheDir != "" {
		if err := cfg.RegisterDependencies(store, flags.cacheDir); err != nil {
			logger.Warn("failed to register declared dependencies", slog.Any("error", err))
		}
	}
	return session, cfg
}

func exitError(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
