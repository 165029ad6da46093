package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func listenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Stay connected and log received tables and row selections until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p, err := opts.openProxy(ctx, false)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "listening as %s, tables go to %s\n", p.Connection().SelfID(), p.ScratchDir().Root())

			<-ctx.Done()

			stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := p.Info(stopCtx, opts.stdout); err != nil {
				return err
			}
			return p.Close(stopCtx)
		},
	}
}

func infoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the registered applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p, err := opts.openProxy(ctx, true)
			if err != nil {
				return err
			}
			defer p.Close(ctx)
			return p.Info(ctx, opts.stdout)
		},
	}
}

func versionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(opts.stdout, "sampc %s, build time %s\n", Version, BuildTime)
		},
	}
}
