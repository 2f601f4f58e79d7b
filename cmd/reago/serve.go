package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reago-dev/reago/pkg/instrument"
	"github.com/reago-dev/reago/pkg/reago"
	"github.com/reago-dev/reago/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		addr    string
		debug   bool
		metrics bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a live server around a demo model",
		Long: `Serve a demo counter model over HTTP and WebSocket.

Endpoints:
  GET  /api/state        snapshot of every cell
  GET  /api/state/{key}  one cell's value
  PUT  /api/state/{key}  write a cell ({"value": ...})
  POST /api/call/{key}   invoke a method ({"args": [...]})
  GET  /live             WebSocket; send {"op":"watch","keys":[...]}
  GET  /metrics          Prometheus metrics (with --metrics)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel(debug),
			}))
			slog.SetDefault(logger)

			opts := []reago.Option{
				reago.WithDebug(debug),
				reago.WithLogger(logger.With("component", "reago")),
			}
			if metrics {
				opts = append(opts, reago.WithObserver(instrument.Prometheus()))
			}

			model, err := demoModel(opts...)
			if err != nil {
				return err
			}

			srv := server.New(model,
				server.WithAddr(addr),
				server.WithLogger(logger.With("component", "server")),
				server.WithMetrics(metrics),
			)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			success("serving demo model on %s", addr)
			info("try: curl localhost%s/api/state", addr)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&debug, "debug", false, "log every cell write")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "expose Prometheus metrics on /metrics")

	return cmd
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// demoModel builds the counter model the serve command hosts.
func demoModel(opts ...reago.Option) (*reago.Model, error) {
	return reago.New(reago.Record{
		"count": 0,
		"step":  1,
		"label": "counter",
		"increment": reago.Method(func(v *reago.View, _ ...any) any {
			next := v.Int("count") + v.Int("step")
			v.Set("count", next)
			return next
		}),
		"reset": reago.Method(func(v *reago.View, _ ...any) any {
			v.Set("count", 0)
			return nil
		}),
	}, opts...)
}
