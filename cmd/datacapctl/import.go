package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vnmchuo/datacap/internal/app"
	"github.com/vnmchuo/datacap/internal/cli"
	"github.com/vnmchuo/datacap/internal/ingest"
)

// At most this many dropped rows are listed; the rest are only counted.
const maxListedRowErrors = 20

var (
	flagUsagePath string
	flagCapsPath  string
	flagSince     string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace all stored usage with a usage export",
	Long: "Reads a wide usage CSV (a Date column plus one column per client) and an optional\n" +
		"caps CSV (client_name, cap_gb), then swaps them in for everything stored before.",
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&flagUsagePath, "usage", "", "Usage CSV path")
	importCmd.Flags().StringVar(&flagCapsPath, "caps", "", "Caps CSV path (optional)")
	importCmd.Flags().StringVar(&flagSince, "since", "", "Skip records dated before YYYY-MM-DD")
	_ = importCmd.MarkFlagRequired("usage")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	opts := ingest.Options{UsagePath: flagUsagePath, CapsPath: flagCapsPath}
	if flagSince != "" {
		since, err := time.Parse("2006-01-02", flagSince)
		if err != nil {
			return fmt.Errorf("invalid --since %q (use YYYY-MM-DD)", flagSince)
		}
		opts.Since = since
	}

	ctx := cmd.Context()
	a, cfg, logger, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return importUsage(ctx, cmd.OutOrStdout(), a, opts, cfg.DefaultCapGB, logger)
}

func importUsage(ctx context.Context, w io.Writer, a *app.App, opts ingest.Options, defaultCapGB float64, logger *zap.Logger) error {
	importerOpts := []ingest.Option{
		ingest.WithDefaultCap(defaultCapGB),
		ingest.WithLogger(logger),
	}
	if a.Cache != nil {
		importerOpts = append(importerOpts, ingest.WithFlusher(a.Cache))
	}

	summary, err := ingest.NewImporter(a.Store, a.Store, importerOpts...).Run(ctx, opts)
	if summary != nil {
		renderImportSummary(w, summary)
	}
	return err
}

func renderImportSummary(w io.Writer, s *ingest.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, cli.RenderTitle("USAGE IMPORT"))
	fmt.Fprintln(w)
	fmt.Fprint(w, cli.RenderTable(cli.Table{
		Headers: []string{"Run", s.RunID},
		Rows: [][]string{
			{"Records accepted", cli.FormatNumber(int64(s.RowsAccepted))},
			{"Rows dropped", cli.FormatNumber(int64(s.RowsDropped))},
			{"Records before --since", cli.FormatNumber(int64(s.RowsFiltered))},
			{"Blank cells", cli.FormatNumber(int64(s.BlankCells))},
			{"Clients", cli.FormatNumber(int64(s.ClientsCreated))},
		},
	}))

	if len(s.Errors) == 0 {
		return
	}
	rows := make([][]string, 0, len(s.Errors))
	for i, e := range s.Errors {
		if i == maxListedRowErrors {
			rows = append(rows, []string{"...", "", fmt.Sprintf("%d more", len(s.Errors)-i)})
			break
		}
		rows = append(rows, []string{fmt.Sprintf("%d", e.Row), e.Column, e.Message})
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, cli.RenderTable(cli.Table{
		Title:   "Dropped rows",
		Headers: []string{"Row", "Column", "Reason"},
		Rows:    rows,
	}))
}
