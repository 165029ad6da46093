package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	samp "github.com/NotrixInc/nx-samp"
	"github.com/NotrixInc/nx-samp/fitstable"
)

func sendCmd(opts *rootOptions) *cobra.Command {
	var (
		name    string
		to      string
		columns []string
	)

	cmd := &cobra.Command{
		Use:   "send <file.fits|file.csv>",
		Short: "Send a table to the other SAMP applications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := loadTable(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = tableNameFor(args[0])
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p, err := opts.openProxy(ctx, true)
			if err != nil {
				return err
			}
			defer p.Close(ctx)

			var sendOpts []samp.SendOption
			if to != "" {
				sendOpts = append(sendOpts, samp.To(to))
			}
			if len(columns) > 0 {
				sendOpts = append(sendOpts, samp.Columns(columns...))
			}
			if err := p.Send(ctx, tbl, name, sendOpts...); err != nil {
				return err
			}
			ref, _ := p.Table(name)
			fmt.Fprintf(opts.stdout, "sent %s (%d rows) as %s\n", args[0], tbl.NumRows(), ref.URL)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "table name (default: file name)")
	cmd.Flags().StringVar(&to, "to", "", "send only to the application with this samp.name")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "rename the columns")
	return cmd
}

func rowsCmd(opts *rootOptions) *cobra.Command {
	var (
		to        string
		highlight bool
	)

	cmd := &cobra.Command{
		Use:   "rows <table> <row>...",
		Short: "Select or highlight rows of a table sent earlier",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseRows(args[1:])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p, err := opts.openProxy(ctx, true)
			if err != nil {
				return err
			}
			defer p.Close(ctx)

			var sendOpts []samp.SendOption
			if to != "" {
				sendOpts = append(sendOpts, samp.To(to))
			}
			if highlight {
				if len(idx) != 1 {
					return errors.Errorf("--highlight takes exactly one row, got %d", len(idx))
				}
				if err := p.SendRow(ctx, args[0], idx[0], sendOpts...); err != nil {
					return err
				}
				fmt.Fprintf(opts.stdout, "highlighted row %d of %s\n", idx[0], args[0])
				return nil
			}
			if err := p.SendRows(ctx, args[0], idx, sendOpts...); err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "sent %d row(s) of %s\n", len(idx), args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "send only to the application with this samp.name")
	cmd.Flags().BoolVar(&highlight, "highlight", false, "highlight a single row instead of selecting rows")
	return cmd
}

func loadTable(path string) (*fitstable.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open csv")
		}
		defer f.Close()
		return fitstable.ReadCSV(f, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	case ".fits", ".fit", ".fts":
		return fitstable.ReadFile(path)
	}
	return nil, errors.Errorf("unsupported table file %s (want .fits or .csv)", path)
}

func tableNameFor(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func parseRows(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil || n < 0 {
				return nil, errors.Errorf("invalid row index %q", part)
			}
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no row indices given")
	}
	return out, nil
}
