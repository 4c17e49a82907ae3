package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fshforge/fsh/internal/decompile"
	"github.com/fshforge/fsh/internal/resolve"
)

func newDecompileCommand(logger *slog.Logger) *cobra.Command {
	flags := &sharedFlags{}
	var outDir, layout string

	cmd := &cobra.Command{
		Use:   "decompile [flags] resource.json...",
		Short: "Decompile FHIR JSON resources into FSH source",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			return runDecompile(logger, flags, outDir, decompile.Layout(layout), paths, cmd.OutOrStdout())
		},
	}
	registerSharedFlags(cmd, flags)
	cmd.Flags().StringVar(&outDir, "out", "", "directory to write organized FSH files to (required)")
	cmd.Flags().StringVar(&layout, "layout", string(decompile.LayoutFilePerDefinition),
		"output layout: file-per-definition|group-by-fsh-type|group-by-profile|single-file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runDecompile(logger *slog.Logger, flags *sharedFlags, outDir string, layout decompile.Layout, paths []string, stdout io.Writer) error {
	resolver, _ := loadResolver(logger, flags)

	lake := decompile.NewResourceLake(resolver)
	for _, path := range paths {
		//nolint:gosec // CLI intentionally reads user-provided file paths.
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := lake.Load(raw); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	proc := decompile.New(lake)
	var exportables []*decompile.Exportable
	for _, t := range []resolve.ResourceType{
		resolve.TypeStructureDefinition,
		resolve.TypeValueSet,
		resolve.TypeCodeSystem,
		resolve.TypeInstance,
	} {
		for _, r := range lake.FishByType(t) {
			ex, err := proc.Process(r)
			if err != nil {
				fmt.Fprintf(stdout, "%s: %v\n", r.URL, err)
				continue
			}
			exportables = append(exportables, ex)
		}
	}

	files, err := decompile.Organize(exportables, layout)
	if err != nil {
		return err
	}
	if err := decompile.WriteAll(outDir, files); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d file(s) to %s\n", len(files), outDir)
	return nil
}
