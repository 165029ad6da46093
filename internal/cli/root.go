package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	samp "github.com/NotrixInc/nx-samp"
)

// Build information, set with -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func Execute() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	debug      bool
	scratch    string

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:          "sampc",
		Short:        "Exchange FITS tables with SAMP applications such as TOPCAT and Aladin",
		SilenceUsage: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.StringVar(&opts.scratch, "scratch", "", "scratch directory for FITS files (default $HOME/tempo/samptables)")

	cmd.AddCommand(
		hubCmd(opts),
		sendCmd(opts),
		rowsCmd(opts),
		listenCmd(opts),
		infoCmd(opts),
		versionCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(o.stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	if o.debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

func (o *rootOptions) loadConfig() (samp.FileConfig, error) {
	cfg, err := samp.LoadConfig(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.scratch != "" {
		cfg.ScratchDir = o.scratch
	}
	return cfg, nil
}

// openProxy connects a proxy that keeps the scratch directory, so tables sent
// by earlier invocations stay addressable.
func (o *rootOptions) openProxy(ctx context.Context, keepScratch bool) (*samp.Proxy, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	pc := cfg.ProxyConfig()
	pc.KeepScratch = keepScratch
	log := samp.NewLogrusLogger(o.logger())
	pc.Logger = log
	pc.Hub.Logger = log
	return samp.NewProxy(ctx, pc)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
