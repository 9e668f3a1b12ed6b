package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vaxtrax/internal/config"
	"vaxtrax/internal/core"
	"vaxtrax/internal/seed"
	"vaxtrax/pkg/domain"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vaxtrax",
		Short:         "Cold-chain vaccine batch tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newClassifyCmd(), newSeedCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func newClassifyCmd() *cobra.Command {
	limits := domain.DefaultTempLimits
	cmd := &cobra.Command{
		Use:   "classify TEMPERATURE...",
		Short: "Classify readings against temperature limits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := limits.Validate(); err != nil {
				return err
			}
			for _, arg := range args {
				t, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("parse temperature %q: %w", arg, err)
				}
				if err := domain.ValidateTemperature(t); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", arg, domain.ClassifyWithin(t, limits))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&limits.Min, "min", limits.Min, "lower bound in °C")
	cmd.Flags().Float64Var(&limits.Max, "max", limits.Max, "upper bound in °C")
	return cmd
}

func newSeedCmd() *cobra.Command {
	var (
		seedValue uint64
		doImport  bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Print the demo batches, or import them into the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider := seed.NewDemoProvider(seed.NewRand(seedValue))
			if !doImport {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(provider.Batches(time.Now().UTC()))
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := core.OpenPersistentStore(cfg.StorageOptions(), nil)
			if err != nil {
				return err
			}
			defer closeStore(store)
			n, err := core.NewService(store).Bootstrap(cmd.Context(), provider)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d batches into %s store\n", n, cfg.StorageDriver)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seedValue, "seed", 1, "random seed for demo readings")
	cmd.Flags().BoolVar(&doImport, "import", false, "import into VAXTRAX_STORAGE_DRIVER instead of printing")
	return cmd
}

func newLogger(w io.Writer, cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}
