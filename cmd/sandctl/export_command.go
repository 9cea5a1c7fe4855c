package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jo-hoe/sandmap/internal/core"
	"github.com/spf13/cobra"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all submissions as a GeoJSON feature collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *core.CoreService) error {
				collection, err := service.ExportFeatures(cmd.Context())
				if err != nil {
					return err
				}

				var w io.Writer = cmd.OutOrStdout()
				toFile := false
				if path := strings.TrimSpace(outPath); path != "" && path != "-" {
					file, err := os.Create(path)
					if err != nil {
						return fmt.Errorf("create %s: %w", path, err)
					}
					defer file.Close()
					w = file
					toFile = true
				}

				if err := json.NewEncoder(w).Encode(collection); err != nil {
					return fmt.Errorf("write feature collection: %w", err)
				}
				if toFile {
					fmt.Fprintf(cmd.OutOrStdout(), "Exported %d features to %s\n", len(collection.Features), outPath)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (defaults to stdout)")
	return cmd
}
