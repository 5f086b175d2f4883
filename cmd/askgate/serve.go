package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vietgrow/askgate/internal/server"
)

var (
	serveAddr  string
	serveDebug bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API until interrupted.

The data directory is locked for the lifetime of the server so that two
processes never share the same quota and cache mirrors. On shutdown the
quota table is flushed to disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := gate.requireAnswers(); err != nil {
			return err
		}

		release, err := gate.lockDataDir("askgate serve")
		if err != nil {
			return err
		}
		defer release()

		addr := cfg.HTTPAddr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv, err := server.New(server.Config{
			Addr:       addr,
			Debug:      serveDebug,
			DailyLimit: cfg.Quota.DailyLimit,
		}, server.Deps{
			Admission:  gate.admission,
			Answers:    gate.answers,
			Identities: gate.identities,
			Topics:     gate.topics,
			Feedback:   gate.feedback,
			Learning:   gate.learning,
			Metrics:    gate.metrics,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s askgate listening on %s\n", green("✓"), addr)

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed to stop server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides ASKGATE_HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "run gin in debug mode")
	rootCmd.AddCommand(serveCmd)
}
