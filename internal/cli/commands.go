// Package cli defines the mkulima command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mkulima/internal/app"
	"mkulima/internal/config"
	"mkulima/internal/domain"
	"mkulima/internal/profit"
	"mkulima/internal/scheduler"
	"mkulima/internal/yield"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mkulima",
		Short: "Mkulima - crop yield and profit advisor for Kenyan farmers",
		Long: `Mkulima predicts per-crop yields from county weather and soil data,
prices a season for a chosen crop and asks a language model for agronomy advice.
Without a subcommand it starts the HTTP API.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				_ = os.Setenv("CONFIG_PATH", path)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			app.Main()
		},
	}
	rootCmd.PersistentFlags().String("config", "", "Configuration file path (default config.yaml)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPredictCmd())
	rootCmd.AddCommand(newCropsCmd())
	rootCmd.AddCommand(newCatalogCmd())
	rootCmd.AddCommand(newMaintenanceCmd())
	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			app.Main()
		},
	}
}

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict yields for a county and print them as JSON",
		Long: `Predict per-crop yields for one county without starting the server.
Example: mkulima predict --county Nakuru --farm-size 2 --crop maize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			county, _ := cmd.Flags().GetString("county")
			farmSize, _ := cmd.Flags().GetFloat64("farm-size")
			crop, _ := cmd.Flags().GetString("crop")
			if farmSize <= 0 {
				return fmt.Errorf("--farm-size must be positive")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runPredict(cmd.Context(), cmd.OutOrStdout(), a, county, farmSize, crop)
		},
	}
	cmd.Flags().String("county", "", "County name, e.g. Nakuru")
	cmd.Flags().Float64("farm-size", 1, "Farm size in acres")
	cmd.Flags().String("crop", "", "Also price this crop with catalog costs")
	_ = cmd.MarkFlagRequired("county")
	return cmd
}

type predictOutput struct {
	County      string                           `json:"county"`
	FarmSize    float64                          `json:"farm_size"`
	Predictions map[string]domain.CropPrediction `json:"predictions"`
	Profit      *domain.ProfitAnalysis           `json:"profit_analysis,omitempty"`
}

func runPredict(ctx context.Context, w io.Writer, a *app.App, county string, farmSize float64, crop string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	row, err := a.Fetcher.Fetch(ctx, county)
	if err != nil {
		return err
	}
	predictions, err := a.Predictor.Predict(row)
	if err != nil {
		return err
	}
	out := predictOutput{County: row.County, FarmSize: farmSize, Predictions: predictions}
	if crop != "" {
		pred, ok := predictions[profit.NormalizeCrop(crop)]
		if !ok {
			return fmt.Errorf("no prediction found for %s", crop)
		}
		analysis, err := a.Calculator.Analyze(crop, farmSize, pred.YieldPerAcre, domain.CostOverrides{})
		if err != nil {
			return err
		}
		out.Profit = &analysis
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newCropsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crops",
		Short: "List crops with a loaded yield model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			models, err := yield.LoadModels(cfg.ModelsDir)
			if err != nil {
				return err
			}
			for _, crop := range yield.NewPredictor(models, nil).Crops() {
				fmt.Fprintln(cmd.OutOrStdout(), crop)
			}
			return nil
		},
	}
}

func newCatalogCmd() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Crop price and cost catalog",
	}
	catalogCmd.AddCommand(&cobra.Command{
		Use:   "export [PATH]",
		Short: "Write the effective crop catalog as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			catalog, err := profit.LoadCatalog(cfg.CropCatalogPath)
			if err != nil {
				return err
			}
			if err := profit.SaveCatalog(args[0], catalog); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d crops to %s\n", len(catalog.Names()), args[0])
			return nil
		},
	})
	return catalogCmd
}

func newMaintenanceCmd() *cobra.Command {
	maintenanceCmd := &cobra.Command{
		Use:   "maintenance",
		Short: "History and cache housekeeping",
	}
	maintenanceCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Prune old history and reload county data once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			result, runErr := a.Maintenance().Run(time.Now())
			fmt.Fprintln(cmd.OutOrStdout(), scheduler.FormatMaintenanceSummary(result))
			if runErr != nil {
				log.Printf("%v", runErr)
			}
			return runErr
		},
	})
	return maintenanceCmd
}
