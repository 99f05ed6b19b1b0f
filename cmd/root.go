package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stickervault/internal/logging"
	"stickervault/internal/models"
	"stickervault/internal/storage"
)

type commandContext struct {
	configPath *string
	cfg        *models.Config
	log        zerolog.Logger
}

func (c *commandContext) ensureConfig() (*models.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := models.LoadConfig(*c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	c.cfg = cfg
	c.log = log
	return cfg, nil
}

func (c *commandContext) openStorage(ctx context.Context) (*storage.Storage, error) {
	db, err := storage.NewStorage(ctx, c.cfg.Database, storage.WithLogger(c.log))
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	return db, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configPath: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "stickervault",
		Short:         "Sticker and media catalog service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "config.yaml", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newAuditCommand(ctx))
	rootCmd.AddCommand(newPurgeCommand(ctx))

	return rootCmd
}
