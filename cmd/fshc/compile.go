package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/executor"
	"github.com/fshforge/fsh/internal/export"
)

func newCompileCommand(logger *slog.Logger) *cobra.Command {
	flags := &sharedFlags{}
	var outDir string

	cmd := &cobra.Command{
		Use:   "compile [flags] file.fsh...",
		Short: "Compile FSH definitions to FHIR JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			return runCompile(cmd.Context(), logger, flags, outDir, paths, cmd.OutOrStdout())
		},
	}
	registerSharedFlags(cmd, flags)
	cmd.Flags().StringVar(&outDir, "out", "", "directory to write <Name>.json files to (omit to print to stdout)")
	return cmd
}

func runCompile(ctx context.Context, logger *slog.Logger, flags *sharedFlags, outDir string, paths []string, stdout io.Writer) error {
	resolver, cfg := loadResolver(logger, flags)

	ex := executor.New(executor.WithWorkers(flags.workers), executor.WithResolver(resolver))
	batch := ex.Run(ctx, paths)

	var exportCfg *export.Config
	if cfg != nil {
		exportCfg = cfg.ExportConfig()
	}

	failed := false
	for _, r := range batch.Results {
		printDiagnostics(stdout, r)
		if r.Err != nil {
			failed = true
			continue
		}
		doc, ok := ast.CastDocument(r.Tree)
		if !ok {
			continue
		}
		results := export.New(r.Model, resolver, exportCfg).ExportAll(doc)
		for _, res := range results {
			if res.Err != nil {
				fmt.Fprintf(stdout, "%s: %s: %v\n", r.Path, res.Name, res.Err)
				failed = true
				continue
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(stdout, "%s: %s: warning: %s\n", r.Path, res.Name, w.Message)
			}
			if err := writeResult(outDir, res, stdout); err != nil {
				return err
			}
		}
	}
	summarize(stdout, batch)
	if failed || batch.HasErrors() {
		return exitError("compile: one or more definitions failed")
	}
	return nil
}

// writeResult marshals whichever resource field res carries and either
// writes it under outDir as <name>.json or prints it to stdout when no
// output directory was given.
func writeResult(outDir string, res export.Result, stdout io.Writer) error {
	var payload any
	switch {
	case res.StructureDefinition != nil:
		payload = res.StructureDefinition
	case res.ValueSet != nil:
		payload = res.ValueSet
	case res.CodeSystem != nil:
		payload = res.CodeSystem
	case res.Instance != nil:
		payload = res.Instance
	default:
		return nil
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", res.Name, err)
	}
	if outDir == "" {
		_, err := stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", outDir, err)
	}
	path := filepath.Join(outDir, res.Name+".json")
	//nolint:gosec // CLI writes compiled output to a user-specified directory.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
