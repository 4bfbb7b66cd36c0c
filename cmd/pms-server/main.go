package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pms/pms/internal/config"
	"github.com/pms/pms/internal/domain/patient"
	"github.com/pms/pms/internal/platform/export"
	"github.com/pms/pms/internal/platform/sandbox"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pms-server",
		Short:        "Patient Management System API server",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(storeCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(exportCmd())
	return root
}

// openApp loads config and opens the store for a maintenance command.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, newLogger(cfg), false)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func storeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the patient store",
	}

	// store init
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create an empty patient store if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.backend.Init(ctx)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created empty %s store.\n", a.backend.Name())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "The %s store already exists; left unchanged.\n", a.backend.Name())
			}
			return nil
		},
	})

	// store verify
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check that every stored patient passes validation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			count, problems, err := a.svc.Verify(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d patient(s) in %s store.\n", count, a.backend.Name())
			for _, p := range problems {
				fmt.Fprintf(out, "%-10s %v\n", p.ID, p.Err)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d invalid patient(s)", len(problems))
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	defaults := sandbox.DefaultSeedConfig()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Add synthetic patients to the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			seed, _ := cmd.Flags().GetInt64("seed")
			prefix, _ := cmd.Flags().GetString("prefix")
			start, _ := cmd.Flags().GetInt("start")
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			patients := sandbox.Generate(sandbox.SeedConfig{
				Count:    count,
				Seed:     seed,
				IDPrefix: prefix,
				StartAt:  start,
			})
			added, err := a.svc.Seed(ctx, patients)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d of %d synthetic patient(s).\n", added, len(patients))
			return nil
		},
	}
	cmd.Flags().Int("count", defaults.Count, "Number of patients to generate")
	cmd.Flags().Int64("seed", defaults.Seed, "Random seed; the same seed yields the same patients")
	cmd.Flags().String("prefix", defaults.IDPrefix, "Patient id prefix")
	cmd.Flags().Int("start", defaults.StartAt, "Number of the first generated id")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all patients to an xlsx spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("out")

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			coll, err := a.svc.List(ctx)
			if err != nil {
				return err
			}

			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := export.WritePatients(f, patient.ExportRows(coll)); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d patient(s) to %s.\n", coll.Len(), path)
			return nil
		},
	}
	cmd.Flags().String("out", "patients.xlsx", "Output file")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	a, err := newApp(context.Background(), cfg, logger, true)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()

	e := newServer(a)
	logger.Info().Str("backend", a.backend.Name()).Msg("patient store ready")

	// Graceful shutdown
	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
