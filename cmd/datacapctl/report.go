package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vnmchuo/datacap/internal/app"
	"github.com/vnmchuo/datacap/internal/cli"
	"github.com/vnmchuo/datacap/internal/report"
	"github.com/vnmchuo/datacap/internal/usage"
)

var (
	flagClient  string
	flagCycles  int
	flagMode    string
	flagCSVPath string
	flagPDFPath string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Point-in-time usage report for one client",
	RunE:  runReport,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Usage per billing cycle since the client's first record",
	RunE:  runHistory,
}

func init() {
	reportCmd.Flags().StringVar(&flagClient, "client", "", "Client name or ID")
	reportCmd.Flags().IntVarP(&flagCycles, "cycles", "n", 3, "Number of most recent cycles")
	reportCmd.Flags().StringVar(&flagMode, "mode", "summary", "Report mode (summary, upgrade)")
	reportCmd.Flags().StringVar(&flagCSVPath, "csv", "", "Also write the usage history as CSV to this path")
	reportCmd.Flags().StringVar(&flagPDFPath, "pdf", "", "Also write the report as PDF to this path")
	_ = reportCmd.MarkFlagRequired("client")

	historyCmd.Flags().StringVar(&flagClient, "client", "", "Client name or ID")
	_ = historyCmd.MarkFlagRequired("client")

	rootCmd.AddCommand(reportCmd, historyCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	mode, err := report.ParseMode(flagMode)
	if err != nil {
		return err
	}
	if flagCycles <= 0 {
		return fmt.Errorf("--cycles must be positive, got %d", flagCycles)
	}

	ctx := cmd.Context()
	a, cfg, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := printReport(ctx, cmd.OutOrStdout(), a, flagClient, flagCycles, mode, cfg.UpgradeThreshold); err != nil {
		return err
	}
	return exportReport(ctx, cmd.OutOrStdout(), a, flagClient, flagCycles, mode, flagCSVPath, flagPDFPath)
}

func printReport(ctx context.Context, w io.Writer, a *app.App, ref string, n int, mode report.Mode, warnAt float64) error {
	client, err := resolveClient(ctx, a.Store, ref)
	if err != nil {
		return err
	}
	current, err := a.Reports.CurrentCycleView(ctx, client.ID)
	if err != nil {
		return err
	}
	rep, err := a.Reports.PointInTimeReport(ctx, client.ID, n, mode)
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, cli.RenderTitle(fmt.Sprintf("%s  (cap %s)", rep.ClientName, cli.FormatGB(rep.CapGB))))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Current cycle  %s\n", current.CycleLabel)
	fmt.Fprintf(w, "  Used           %s  %s\n", cli.FormatGB(current.TotalUsage),
		cli.RenderUsageBar(current.TotalUsage, current.CapGB, warnAt, 30))
	fmt.Fprintf(w, "  Forecast       %s\n", cli.FormatGB(current.Forecast))
	if len(current.Data) > 0 {
		fmt.Fprintf(w, "  Daily          %s\n", cli.RenderSparkline(current.Data))
	}
	fmt.Fprintln(w)

	rows := make([][]string, 0, len(rep.Cycles)+2)
	for _, c := range rep.Cycles {
		rows = append(rows, []string{c.CycleLabel, cli.FormatGB(c.TotalUsage), cli.FormatPercent(usage.UsagePercentage(c.TotalUsage, rep.CapGB))})
	}
	rows = append(rows,
		[]string{"---"},
		[]string{"Average", cli.FormatGB(rep.AverageUsage), cli.FormatPercent(usage.UsagePercentage(rep.AverageUsage, rep.CapGB))},
	)
	fmt.Fprint(w, cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("Last %d cycles", n),
		Headers: []string{"Cycle", "Usage", "Of cap"},
		Rows:    rows,
	}))

	if rep.Recommendation != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, cli.RenderWarning(rep.Recommendation))
	}
	return nil
}

func exportReport(ctx context.Context, w io.Writer, a *app.App, ref string, n int, mode report.Mode, csvPath, pdfPath string) error {
	if csvPath == "" && pdfPath == "" {
		return nil
	}
	client, err := resolveClient(ctx, a.Store, ref)
	if err != nil {
		return err
	}
	if csvPath != "" {
		if err := writeFile(csvPath, func(f io.Writer) error {
			return a.Reports.WriteCSV(ctx, f, client.ID)
		}); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n  CSV written to %s\n", csvPath)
	}
	if pdfPath != "" {
		if err := writeFile(pdfPath, func(f io.Writer) error {
			return a.Reports.WritePDF(ctx, f, client.ID, n, mode)
		}); err != nil {
			return err
		}
		fmt.Fprintf(w, "  PDF written to %s\n", pdfPath)
	}
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, _, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return printHistory(ctx, cmd.OutOrStdout(), a, flagClient)
}

func printHistory(ctx context.Context, w io.Writer, a *app.App, ref string) error {
	client, err := resolveClient(ctx, a.Store, ref)
	if err != nil {
		return err
	}
	cycles, err := a.Reports.HistoricalView(ctx, client.ID)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		fmt.Fprintf(w, "\n  No usage recorded for %s.\n", client.Name)
		return nil
	}

	rows := make([][]string, 0, len(cycles))
	for _, c := range cycles {
		rows = append(rows, []string{
			c.CycleLabel,
			cli.FormatNumber(int64(len(c.Data))),
			cli.FormatGB(c.TotalUsage),
			cli.RenderSparkline(c.Data),
		})
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, cli.RenderTable(cli.Table{
		Title:   client.Name,
		Headers: []string{"Cycle", "Records", "Usage", "Daily"},
		Rows:    rows,
	}))
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
