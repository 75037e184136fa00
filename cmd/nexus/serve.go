package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/nexus"
	"pkt.systems/nexus/internal/appconfig"
	"pkt.systems/nexus/internal/format"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			logger, closeLog, err := fileLogger(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = pslog.ContextWithLogger(ctx, logger)

			srv, err := nexus.New(ctx, serverConfig(cfg), nexus.ServerDeps{
				Formatter: format.NewPlainFormatter(),
				Logger:    logger,
			}, nexus.WithHTTP())
			if err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Stop(stopCtx)
			}()
			if err := srv.Start(ctx); err != nil {
				return err
			}
			logger.Info("serve listening", "addr", cfg.HTTP.Addr, "base_path", cfg.HTTP.BasePath)
			return srv.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
