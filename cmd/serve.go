package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"stickervault/internal/blobstore"
	"stickervault/internal/catalog"
	"stickervault/internal/events"
	"stickervault/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the Kafka ingest consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(parent context.Context, cc *commandContext) error {
	cfg, log := cc.cfg, cc.log

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := cc.openStorage(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := blobstore.New(ctx, cfg.Blob, log)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled {
		producer := events.NewKafkaPublisher(cfg.Kafka, log)
		defer producer.Close()
		publisher = producer
	}

	ingester := catalog.NewIngester(db, blobs, publisher, catalog.NewRecorder(db, log), *cfg, log)
	curator := catalog.NewCurator(db, cfg.Packs.DefaultMaxStickers, log)
	voter := catalog.NewVoter(db, publisher, cfg.Moderation.Quorum, log)

	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		consumer := events.NewConsumer(cfg.Kafka, cfg.Ingest.MaxBytes, ingester, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("ingest consumer stopped")
			}
		}()
	}

	srv := server.NewServer(cfg, db, blobs, ingester, curator, voter, log)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errCh:
		stop()
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), cfg.ShutdownTimeout)
	defer cancel()
	if stopErr := srv.Stop(shutdownCtx); stopErr != nil {
		log.Error().Err(stopErr).Msg("http shutdown")
	}
	wg.Wait()
	return err
}
