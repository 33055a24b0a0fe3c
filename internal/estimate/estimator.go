package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/config"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/emission"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/extract"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/query"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/vision"
)

// Estimator is the pipeline entry point for both input paths
// It holds no per-request state and is safe for concurrent use.
type Estimator struct {
	products query.QueryEngine
	model    vision.Model
	table    *emission.Table
	timeout  time.Duration
	log      *slog.Logger
}

// NewEstimator wires the pipeline. model may be nil when only barcode lookups are served.
// A zero timeout leaves upstream calls bounded only by the caller's context.
func NewEstimator(products query.QueryEngine, model vision.Model, table *emission.Table, timeout time.Duration, logger *slog.Logger) *Estimator {
	if table == nil {
		table = emission.DefaultTable()
	}
	return &Estimator{
		products: products,
		model:    model,
		table:    table,
		timeout:  timeout,
		log:      logger,
	}
}

// Table returns the emission factor table the estimator applies
func (e *Estimator) Table() *emission.Table {
	return e.table
}

// EstimateFromBarcode resolves a barcode against the product database
func (e *Estimator) EstimateFromBarcode(ctx context.Context, barcode string) (*types.EmissionEstimate, error) {
	log, _ := config.WithRequest(e.log, "barcode")
	start := time.Now()
	log.Debug("Barcode estimate starting", "barcode", barcode)

	if e.products == nil {
		return nil, e.fail(log, start, fmt.Errorf("%w: no product database configured", types.ErrUpstreamUnavailable))
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	partial, err := ResolveBarcode(ctx, e.products, barcode)
	if err != nil {
		return nil, e.fail(log, start, deadline(ctx, err))
	}

	return e.finish(log, start, partial)
}

// EstimateFromImage asks the vision model about a product photograph
// image may be raw bytes, base64 text or a data URL.
func (e *Estimator) EstimateFromImage(ctx context.Context, image []byte) (*types.EmissionEstimate, error) {
	log, _ := config.WithRequest(e.log, "image")
	start := time.Now()

	img, err := vision.NewImage(image)
	if err != nil {
		return nil, e.fail(log, start, err)
	}
	log.Debug("Image estimate starting", "media_type", img.MediaType, "bytes", len(img.Data))

	if e.model == nil {
		return nil, e.fail(log, start, fmt.Errorf("%w: no vision model configured", types.ErrUpstreamUnavailable))
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	text, err := e.model.Analyze(ctx, vision.NewRequest(e.table, img))
	if err != nil {
		return nil, e.fail(log, start, deadline(ctx, err))
	}

	raw, err := extract.Extract(text)
	if err != nil {
		log.Debug("Model answer had no structured payload", "answer_length", len(text))
		return nil, e.fail(log, start, err)
	}

	return e.finish(log, start, raw)
}

func (e *Estimator) finish(log *slog.Logger, start time.Time, raw map[string]any) (*types.EmissionEstimate, error) {
	est := Normalize(raw, e.table)
	if err := Validate(est); err != nil {
		return nil, e.fail(log, start, err)
	}

	log.Info("Estimate completed",
		"co2_kg", est.CO2Kg,
		"confidence", est.Confidence,
		"alternatives", len(est.Alternatives),
		"duration", time.Since(start))
	return &est, nil
}

func (e *Estimator) fail(log *slog.Logger, start time.Time, err error) error {
	level := slog.LevelError
	if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrInvalidInput) {
		level = slog.LevelInfo
	}
	log.Log(context.Background(), level, "Estimate failed", "error", err, "duration", time.Since(start))
	return err
}

func (e *Estimator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// deadline reports an expired context as an upstream failure regardless of how
// the client library surfaced it
func deadline(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, types.ErrUpstreamUnavailable) {
		return fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)
	}
	return err
}
