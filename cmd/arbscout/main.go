package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"arbscout/internal/app"
	"arbscout/internal/config"
	"arbscout/internal/logging"
	"arbscout/internal/model"
)

var (
	configPath string
	onceNotify bool
)

var rootCmd = &cobra.Command{
	Use:   "arbscout",
	Short: "Cross-exchange spot arbitrage scanner",
	Long: `arbscout polls spot prices for a set of symbols on several exchanges and
reports buy-low/sell-high opportunities whose net profit, after trading and
withdrawal fees, clears the configured threshold.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan continuously until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), app.Options{Notify: true}, func(ctx context.Context, a *app.App) error {
			return a.Run(ctx)
		})
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single scan cycle and print the opportunities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), app.Options{Notify: onceNotify}, func(ctx context.Context, a *app.App) error {
			res, err := a.RunOnce(ctx)
			if err != nil {
				return err
			}
			return printOpportunities(cmd.OutOrStdout(), res.Scan.Opportunities)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "Directory holding config.yaml and .env")
	onceCmd.Flags().BoolVar(&onceNotify, "notify", false, "Send alerts for the opportunities found")
	rootCmd.AddCommand(runCmd, onceCmd)
}

func withApp(parent context.Context, opts app.Options, fn func(context.Context, *app.App) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("cannot set up logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		logger.Error("Stopped with error", "error", err)
		return err
	}
	logger.Info("Shut down cleanly")
	return nil
}

func printOpportunities(w io.Writer, opps []model.Opportunity) error {
	if len(opps) == 0 {
		_, err := fmt.Fprintln(w, "No arbitrage opportunities above the threshold.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tBUY\tBUY PRICE\tSELL\tSELL PRICE\tNET PROFIT\tNET %")
	for _, o := range opps {
		fmt.Fprintf(tw, "%s\t%s\t%.6f\t%s\t%.6f\t%.4f\t%.3f\n",
			o.Symbol, o.BuyExchange, o.BuyPrice, o.SellExchange, o.SellPrice, o.NetProfit, o.NetProfitPct)
	}
	return tw.Flush()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
