package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/EGF2/file/pkg/lifecycle"
	"github.com/EGF2/file/pkg/lifecycle/api"
	"github.com/EGF2/file/pkg/lifecycle/config"
	repopg "github.com/EGF2/file/pkg/lifecycle/repo/postgres"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var port string
	var noGC bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event webhook and garbage collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []config.Option
			if port != "" {
				extra = append(extra, config.WithPort(port))
			}
			cfg, err := loadConfig(cmd, extra...)
			if err != nil {
				return err
			}
			logger := cfg.NewLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cfg.BuildPipeline(ctx, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			p := rt.Pipeline

			server := api.NewServer(p, api.Options{
				Kinds:  cfg.Resizes,
				Ready:  rt.Ready,
				Logger: logger,
			})
			httpServer := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           server.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			collector := p.Collector()
			if cfg.GC.Enabled && !noGC {
				collector.Start(ctx)
			}
			defer drain(p)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("File service starting", "port", cfg.Port, "environment", cfg.Environment)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
			}

			logger.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", "error", err)
			}
			drain(p)
			logger.Info("Server exiting")
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides FILE_PORT)")
	cmd.Flags().BoolVar(&noGC, "no-gc", false, "do not run the garbage collector in this process")

	return cmd
}

// drain stops the collector before waiting on the dispatcher: with the
// memory store a running sweep still publishes delete events.
func drain(p *lifecycle.Pipeline) {
	p.Collector().Stop()
	p.Dispatcher().Wait()
}

// NewSweepCommand creates the sweep command
func NewSweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one garbage collection pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cfg.NewLogger()

			rt, err := cfg.BuildPipeline(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			result := rt.Pipeline.Collector().RunOnce(cmd.Context())
			rt.Pipeline.Dispatcher().Wait()

			fmt.Fprintf(cmd.OutOrStdout(), "Cutoff:  %s\n", result.Cutoff.Format(time.RFC3339))
			fmt.Fprintf(cmd.OutOrStdout(), "Found:   %d\n", result.Found)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted: %d\n", result.Deleted)
			fmt.Fprintf(cmd.OutOrStdout(), "Skipped: %d\n", result.Skipped)
			fmt.Fprintf(cmd.OutOrStdout(), "Errors:  %d\n", result.Errors)
			if result.Errors > 0 {
				return fmt.Errorf("sweep finished with %d errors", result.Errors)
			}
			return nil
		},
	}
	return cmd
}

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dbType, err := cfg.DatabaseType()
			if err != nil {
				return err
			}
			if dbType != "postgres" {
				return fmt.Errorf("migrate requires a postgres database, got %q", dbType)
			}
			if err := repopg.Migrate(cfg.DatabaseURL, cfg.NewLogger()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
	return cmd
}
