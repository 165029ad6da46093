package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	samp "github.com/NotrixInc/nx-samp"
)

func hubCmd(opts *rootOptions) *cobra.Command {
	var (
		addr        string
		lockfile    string
		label       string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Run a SAMP hub until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			hc := cfg.HubConfig()
			if addr != "" {
				hc.Addr = addr
			}
			if lockfile != "" {
				hc.LockfilePath = lockfile
			}
			if label != "" {
				hc.Label = label
			}
			log := opts.logger()
			hc.Logger = samp.NewLogrusLogger(log)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			h := samp.NewHub(hc)
			if err := h.Start(ctx); err != nil {
				return err
			}

			var metrics *http.Server
			if metricsAddr != "" {
				router := mux.NewRouter()
				router.Handle("/metrics", promhttp.HandlerFor(h.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
				metrics = &http.Server{Addr: metricsAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.WithError(err).Error("metrics server stopped")
					}
				}()
			}

			log.WithField("url", h.URL()).WithField("lockfile", h.LockfilePath()).Info("hub running")
			<-ctx.Done()
			log.Info("shutting down")

			stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if metrics != nil {
				_ = metrics.Shutdown(stopCtx)
			}
			return errors.Wrap(h.Stop(stopCtx), "stop hub")
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default 127.0.0.1:0)")
	cmd.Flags().StringVar(&lockfile, "lockfile", "", "lockfile path (default SAMP_HUB or $HOME/.samp)")
	cmd.Flags().StringVar(&label, "label", "", "hub label written to the lockfile")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}
