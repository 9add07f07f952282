package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"investigator/internal/bootstrap"
	"investigator/internal/bootstrap/logging"
	"investigator/internal/errs"
	"investigator/internal/infrastructure/httpapi"
	"investigator/internal/usecase/investigation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve investigation requests and GitHub webhooks over HTTP",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		addr, _ := cmd.Flags().GetString("addr")
		addr = strings.TrimSpace(addr)
		if addr == "" {
			addr = app.Config.Server.Addr
		}

		server := &http.Server{
			Addr: addr,
			Handler: httpapi.NewHandler(svc, httpapi.Options{
				WebhookSecret: app.Config.GitHub.WebhookSecret,
				Metrics:       app.Metrics,
			}),
			ReadTimeout:  app.Config.Server.ReadTimeout,
			WriteTimeout: app.Config.Server.WriteTimeout,
			BaseContext:  func(net.Listener) context.Context { return ctx },
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logging.Info(ctx, "http server started", slog.String("addr", addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errs.Wrap(err, "serve http")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.Config.Server.ShutdownTimeout)
			defer cancel()
			logging.Info(ctx, "http server shutting down")
			return server.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			logging.Error(ctx, "http server failed", slog.Any("err", errs.Loggable(err)))
			return err
		}
		logging.Info(ctx, "http server stopped")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (defaults to server.addr)")
}
