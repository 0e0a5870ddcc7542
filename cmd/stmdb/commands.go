package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/database"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/ingestion"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/instrument"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the metadata tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.CreateSchema(ctx); err != nil {
					return err
				}
				a.log.Info("Schema ready", zap.String("driver", a.cfg.Driver))
				return nil
			})
		},
	}
}

func newIngestCmd() *cobra.Command {
	var haltOnError bool

	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Ingest every exported flat file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if cmd.Flags().Changed("halt-on-error") {
					a.cfg.HaltOnError = haltOnError
				}

				metrics := ingestion.NewMetrics()
				service := ingestion.NewIngestionService(ingestion.NewRepositories(a.store), metrics, a.log)
				processor := ingestion.NewFileProcessor(service, instrument.NewJSONReader(), metrics, ingestion.FileProcessorConfig{
					HaltOnError:    a.cfg.HaltOnError,
					NumReaders:     a.cfg.NumReaders,
					PushgatewayURL: a.cfg.PushgatewayURL,
				}, a.log)

				report, err := processor.Execute(ctx, args[0])
				if report != nil {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "run %s: %d ingested, %d unsupported, %d failed in %s\n",
						report.RunID, len(report.Ingested), len(report.Unsupported), len(report.Failures), report.Duration.Round(time.Millisecond))
					for _, f := range report.Failures {
						fmt.Fprintf(out, "  %s: %s\n", f.FileName, f.Kind)
					}
				}
				if err != nil {
					return err
				}
				if len(report.Failures) > 0 {
					return fmt.Errorf("%d file(s) failed to ingest", len(report.Failures))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&haltOnError, "halt-on-error", false, "stop at the first failing file (overrides HALT_ON_ERROR)")
	return cmd
}

// parseFilters turns col=value arguments into raw filters.
func parseFilters(args []string) (map[string]string, error) {
	raw := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid filter %q, expected column=value", arg)
		}
		raw[name] = value
	}
	return raw, nil
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <table> [column=value...]",
		Short: "Select rows matching every column filter",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseFilters(args[1:])
			if err != nil {
				return err
			}
			fields, err := database.ParseFields(args[0], raw)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				rows, err := database.NewQueryService(a.store).Select(ctx, args[0], fields)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, row := range rows {
					if err := enc.Encode(row); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var fileName, timestamp string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a file with its metadata, or a single experiment row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (fileName == "") == (timestamp == "") {
				return errors.New("exactly one of --file or --experiment is required")
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				service := ingestion.NewIngestionService(ingestion.NewRepositories(a.store), nil, a.log)
				if fileName != "" {
					return service.RemoveFile(ctx, fileName)
				}
				orphans, err := service.RemoveExperiment(ctx, timestamp)
				if err != nil {
					return err
				}
				if orphans > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) now reference a missing experiment\n", orphans)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fileName, "file", "", "file name to delete")
	cmd.Flags().StringVar(&timestamp, "experiment", "", "experiment timestamp (YYYYMMDDhhmmss) to delete")
	return cmd
}

func newOrphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List rows whose parent has been deleted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := database.NewQueryService(a.store).Orphans(ctx)
				if err != nil {
					return err
				}
				if report.Empty() {
					fmt.Fprintln(cmd.OutOrStdout(), "no orphaned rows")
					return nil
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
}

// newServeRegistry holds the runtime collectors of the serve process only.
// Ingestion counters live in the ingest process and reach Prometheus through
// the pushgateway.
func newServeRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve reports and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				registry := newServeRegistry()
				router := server.SetupRoutes(server.NewReportService(database.NewQueryService(a.store), a.log), registry)
				srv := &http.Server{
					Addr:              fmt.Sprintf(":%d", a.cfg.APIPort),
					Handler:           router,
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					a.log.Info("Server starting", zap.Int("port", a.cfg.APIPort))
					errCh <- srv.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
					a.log.Info("Server shutting down")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				}
			})
		},
	}
}
