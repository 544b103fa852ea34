package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tracker/internal/backend"
	"tracker/internal/config"
	apphttp "tracker/internal/http"
	"tracker/internal/log"
	"tracker/internal/services"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := Bootstrap(rootOpts.EnvFile, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Addr()
			}

			ctx, stop := GracefulShutdown(cmd.Context(), logger)
			defer stop()
			return runServe(ctx, cfg, logger, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to HOST:PORT)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *log.Logger, addr string) error {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err.Error())
		}
	}()

	var opts []services.Option
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	users := services.NewUserService(res.Backend, opts...)
	categories := services.NewCategoryService(res.Backend, opts...)
	records := services.NewRecordService(res.Backend, users, categories, opts...)

	srv := apphttp.NewServer(addr, apphttp.Deps{
		Users:              users,
		Categories:         categories,
		Records:            records,
		Health:             res.Backend,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting tracker server", "addr", addr, "backend", cfg.DataBackend, "events", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
			return err
		}
		logger.Info("Server stopped gracefully")
		return nil
	})

	return g.Wait()
}
