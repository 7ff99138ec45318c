package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awaistahir/what-to-wear/internal/config"
	"github.com/awaistahir/what-to-wear/internal/jobs"
	"github.com/awaistahir/what-to-wear/internal/logger"
	"github.com/awaistahir/what-to-wear/internal/smsapi"
	"github.com/awaistahir/what-to-wear/internal/store"
	"github.com/spf13/cobra"
)

func main() {
	var port int
	var cfgFile, dbPath string

	rootCmd := &cobra.Command{
		Use:          "what-to-weard",
		Short:        "What to Wear SMS webhook server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.Store.Driver = config.DriverSQLite
				cfg.Store.Path = dbPath
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := store.Open(ctx, cfg.Store)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			feedback := &jobs.Feedback{Store: st, Log: log.With("component", "feedback")}
			srv := smsapi.NewServer(feedback, nil, log)

			httpSrv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("Webhook server starting", "port", cfg.Server.Port, "driver", cfg.Store.Driver)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}

	rootCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port (overrides server.port)")
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
