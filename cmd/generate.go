package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pocketbase/pocketbase"
	"github.com/spf13/cobra"

	"qrticket/internal/exporter"
	"qrticket/internal/services"
	"qrticket/internal/store"
	"qrticket/models"
)

// generateCommand creates a batch from the command line and writes the files
// into dir.
func generateCommand(app *pocketbase.PocketBase, generator *services.Generator, dir string) *cobra.Command {
	var (
		eventID  string
		quantity int
		format   string
		layout   string
		out      string
	)

	command := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of tickets for an event into a directory",
		RunE: func(command *cobra.Command, args []string) error {
			if err := store.EnsureCollections(app); err != nil {
				return err
			}

			opts := models.DefaultDesignOptions()
			opts.Orientation = models.Orientation(layout)

			if out == "" {
				out = dir
			}
			ctx := command.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			res, err := generator.Generate(ctx, services.GenerateRequest{
				EventID:  eventID,
				Quantity: quantity,
				Options:  opts,
				Format:   format,
			}, exporter.DirSaver{Dir: out})
			if res != nil {
				for _, f := range res.Files {
					fmt.Println(f)
				}
			}
			if err != nil {
				slog.Error("Generation failed", "event", eventID, "error", err)
				return err
			}
			return nil
		},
	}

	command.Flags().StringVar(&eventID, "event", "", "event id")
	command.Flags().IntVar(&quantity, "quantity", 1, "number of tickets")
	command.Flags().StringVar(&format, "format", services.FormatPDF, "pdf or png")
	command.Flags().StringVar(&layout, "orientation", string(models.OrientationLandscape), "landscape or portrait")
	command.Flags().StringVar(&out, "out", "", "output directory (defaults to EXPORT_DIR)")
	_ = command.MarkFlagRequired("event")

	return command
}
