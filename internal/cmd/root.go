package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/config"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/dataset"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/emission"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/estimate"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/mcpgo"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/query"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/version"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/vision"
)

const rootLong = `Carbon Footprint MCP Server estimates the kg CO2e of a consumer product from
its barcode (Open Food Facts) or from a photograph (vision model).

The server operates in three modes:

1. STDIO Mode (--stdio): For local Claude Desktop integration
   - Uses stdio pipes for communication
   - Logs go to stderr

2. HTTP Mode (default): For remote deployment
   - Streamable HTTP MCP endpoint on /mcp
   - Cached health check on /health

3. Fetch Database Mode (--fetch-db): Download the Open Food Facts parquet
   snapshot used by PRODUCT_SOURCE=parquet and exit

Available MCP Tools:
- estimate_from_barcode: Estimate from a UPC/EAN barcode
- estimate_from_image: Estimate from a base64 or data URL product photo
- list_emission_factors: Show the emission factor table in use

The estimate and factors subcommands run the same pipeline from the shell.`

// newRootCmd builds the command tree; tests build a fresh one per case
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "carbon-footprint-mcp-server",
		Short:        "Carbon footprint estimation MCP server",
		Long:         rootLong,
		Version:      version.String(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fetchDB, _ := cmd.Flags().GetBool("fetch-db")
			if fetchDB {
				return runFetchDBMode(cmd)
			}

			stdio, _ := cmd.Flags().GetBool("stdio")
			if stdio {
				return runStdioMode(cmd)
			}
			return runHTTPMode(cmd)
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.Flags().Bool("stdio", false, "Run in stdio mode for local Claude Desktop integration (default: HTTP mode for remote deployment)")
	rootCmd.Flags().Bool("fetch-db", false, "Fetch the product snapshot and exit")

	rootCmd.AddCommand(newEstimateCmd(), newFactorsCmd())
	return rootCmd
}

func newEstimateCmd() *cobra.Command {
	estimateCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate a product's carbon footprint and print it as JSON",
	}

	estimateCmd.AddCommand(&cobra.Command{
		Use:   "barcode <code>",
		Short: "Estimate from a UPC/EAN barcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(cmd, func(ctx context.Context, e *estimate.Estimator) (any, error) {
				return e.EstimateFromBarcode(ctx, args[0])
			})
		},
	})

	estimateCmd.AddCommand(&cobra.Command{
		Use:   "image <path>",
		Short: "Estimate from a product photo (JPEG, PNG, GIF, WebP, or a file holding base64)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading image: %w", err)
			}
			return runEstimate(cmd, func(ctx context.Context, e *estimate.Estimator) (any, error) {
				return e.EstimateFromImage(ctx, data)
			})
		},
	})

	return estimateCmd
}

func newFactorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "factors",
		Short: "Print the emission factor table in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			table, err := emission.LoadTable(cfg.EmissionFactorsPath)
			if err != nil {
				return err
			}
			return printJSON(cmd, table)
		},
	}
}

func runEstimate(cmd *cobra.Command, run func(context.Context, *estimate.Estimator) (any, error)) error {
	logger := config.NewTextLogger(cmd.ErrOrStderr())
	cfg := config.Load()

	estimator, products, err := buildEstimator(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer products.Close()

	result, err := run(cmd.Context(), estimator)
	if err != nil {
		return fmt.Errorf("%s: %w", estimate.UserMessage(err), err)
	}
	return printJSON(cmd, result)
}

// runFetchDBMode fetches the product snapshot and exits
func runFetchDBMode(cmd *cobra.Command) error {
	logger := config.NewTextLogger(cmd.ErrOrStderr())
	cfg := config.Load()

	logger.Info("🗄️  Starting snapshot fetch",
		"mode", "fetch-db",
		"url", cfg.ParquetURL,
		"target", cfg.ParquetPath)

	logger.Info("⚠️  Large dataset warning",
		"message", "The Open Food Facts snapshot is several GB in size",
		"note", "Initial download may take several minutes depending on your internet connection")

	if err := dataset.NewManager(cfg, logger).EnsureDataset(cmd.Context()); err != nil {
		logger.Error("Failed to fetch snapshot", "error", err)
		return err
	}

	logger.Info("✅ Snapshot fetch completed successfully",
		"parquet_path", cfg.ParquetPath,
		"metadata_path", cfg.MetadataPath)
	return nil
}

// runStdioMode runs the MCP server in stdio mode for Claude Desktop
func runStdioMode(cmd *cobra.Command) error {
	// stderr keeps stdout free for MCP frames
	logger := config.NewLogger(true)
	cfg := config.Load()

	logger.Info("🔌 Starting Carbon Footprint MCP Server in STDIO mode",
		"mode", "stdio",
		"product_source", cfg.ProductSource,
		"vision_provider", cfg.VisionProvider)

	estimator, products, err := buildEstimator(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer products.Close()

	return mcpgo.NewServer(estimator, products, logger).ServeStdio()
}

// runHTTPMode runs the MCP server in HTTP mode for remote deployment
func runHTTPMode(cmd *cobra.Command) error {
	logger := config.NewLogger(false)
	cfg := config.Load()

	logger.Info("🌐 Starting Carbon Footprint MCP Server in HTTP mode",
		"mode", "http",
		"transport", "streamable HTTP",
		"port", cfg.Port,
		"product_source", cfg.ProductSource,
		"vision_provider", cfg.VisionProvider)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	estimator, products, err := buildEstimator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer products.Close()

	if cfg.ProductSource == config.ProductSourceParquet {
		go refreshLoop(ctx, dataset.NewManager(cfg, logger), cfg.RefreshInterval(), logger)
	}

	return mcpgo.NewServer(estimator, products, logger).ServeHTTP(ctx, ":"+cfg.Port)
}

// buildEstimator wires the product source, vision model and factor table
// The parquet source has its snapshot ensured first.
func buildEstimator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*estimate.Estimator, query.QueryEngine, error) {
	table, err := emission.LoadTable(cfg.EmissionFactorsPath)
	if err != nil {
		return nil, nil, err
	}

	if cfg.ProductSource == config.ProductSourceParquet && os.Getenv("QUERY_ENGINE_MOCK") != "true" {
		if err := dataset.NewManager(cfg, logger).EnsureDataset(ctx); err != nil {
			logger.Error("Failed to ensure snapshot", "error", err)
			return nil, nil, err
		}
	}

	products, err := query.NewQueryEngine(cfg, logger)
	if err != nil {
		logger.Error("Failed to create product source", "error", err)
		return nil, nil, err
	}

	model := newVisionModel(cfg, logger)

	return estimate.NewEstimator(products, model, table, cfg.UpstreamTimeout(), logger), products, nil
}

// newVisionModel returns nil when the selected provider has no credentials;
// image estimates then fail as upstream unavailable while barcode lookups keep working
func newVisionModel(cfg *config.Config, logger *slog.Logger) vision.Model {
	switch cfg.VisionProvider {
	case config.VisionProviderOpenAI:
		model, err := vision.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		if err != nil {
			logger.Warn("Image estimates disabled", "provider", cfg.VisionProvider, "error", err)
			return nil
		}
		return model
	case config.VisionProviderAnthropic, "":
		model, err := vision.NewAnthropicModel(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			logger.Warn("Image estimates disabled", "provider", cfg.VisionProvider, "error", err)
			return nil
		}
		return model
	default:
		logger.Warn("Image estimates disabled: unknown vision provider", "provider", cfg.VisionProvider)
		return nil
	}
}

// refreshLoop keeps the parquet snapshot current while the server runs
func refreshLoop(ctx context.Context, manager *dataset.Manager, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updated, err := manager.Refresh(ctx)
			if err != nil {
				logger.Warn("Snapshot refresh failed", "error", err)
				continue
			}
			if updated {
				logger.Info("Snapshot refreshed")
			}
		}
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the root command
func Execute() error {
	return newRootCmd().Execute()
}

// Run is the main entry point for the CLI application
func Run() error {
	return Execute()
}
