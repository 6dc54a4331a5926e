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
	"github.com/vnmchuo/datacap/internal/cycle"
	"github.com/vnmchuo/datacap/internal/seeder"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List clients with their current-cycle usage",
	RunE:  runClients,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo client with sample usage",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(clientsCmd, seedCmd)
}

func runClients(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, cfg, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return printClients(ctx, cmd.OutOrStdout(), a, time.Now(), cfg.UpgradeThreshold)
}

func printClients(ctx context.Context, w io.Writer, a *app.App, now time.Time, warnAt float64) error {
	summaries, err := a.Reports.ClientSummaries(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(w, "\n  No clients yet. Run `datacapctl import --usage FILE` first.")
		return nil
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			fmt.Sprintf("%d  %s", s.ID, s.Name),
			cli.FormatGB(s.CurrentUsage),
			cli.FormatGB(s.CapGB),
			cli.RenderUsageBar(s.CurrentUsage, s.CapGB, warnAt, 20),
		})
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, cli.RenderTable(cli.Table{
		Title:   "Current cycle: " + cycle.Current(now).Label(),
		Headers: []string{"Client", "Used", "Cap", "Of cap"},
		Rows:    rows,
	}))
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, _, logger, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	seeder.SeedDemoClient(ctx, a.Store, time.Now(), logger.With(zap.String("cmd", "seed")))
	if a.Cache != nil {
		if err := a.Cache.Flush(ctx); err != nil {
			logger.Warn("failed to flush cycle cache", zap.Error(err))
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n  Seeded %q.\n", seeder.DemoClientName)
	return nil
}
