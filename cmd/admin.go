package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stickervault/internal/blobstore"
	"stickervault/internal/catalog"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := db.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
			return nil
		},
	}
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Recompute tag usage, pack counts and pack positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := db.Recount(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tags fixed:      %d\n", report.TagsFixed)
			fmt.Fprintf(out, "Packs fixed:     %d\n", report.PacksFixed)
			fmt.Fprintf(out, "Positions moved: %d\n", report.PositionsMoved)
			return nil
		},
	}
}

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <media-id>",
		Short: "Delete a media item with its tags, pack slots, votes and blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid media id %q: %w", args[0], err)
			}
			db, err := ctx.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			blobs, err := blobstore.New(cmd.Context(), ctx.cfg.Blob, ctx.log)
			if err != nil {
				return err
			}
			m, err := catalog.Purge(cmd.Context(), db, blobs, id, ctx.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s (%s)\n", m.ID, m.FilePath)
			return nil
		},
	}
}
