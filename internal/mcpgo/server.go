package mcpgo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/estimate"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/query"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/version"
)

const (
	healthCacheDuration = 10 * time.Second

	httpReadTimeout     = 15 * time.Second
	httpIdleTimeout     = 60 * time.Second
	httpShutdownTimeout = 30 * time.Second
)

// responseRecorder wraps http.ResponseWriter to capture response details
type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int
	headerWritten bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.headerWritten {
		return
	}
	r.statusCode = code
	r.headerWritten = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(data)
	r.bytesWritten += n
	return n, err
}

// Flush keeps streaming responses working through the recorder
func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Server exposes the estimation pipeline as MCP tools
type Server struct {
	mcpServer *server.MCPServer
	estimator *estimate.Estimator
	products  query.QueryEngine
	log       *slog.Logger

	// Health check caching to prevent DOS attacks
	healthMu        sync.RWMutex
	lastHealthCheck time.Time
	lastHealthError error
}

// EstimateResponse is the structured result of both estimation tools
type EstimateResponse struct {
	Found    bool                    `json:"found"`
	Message  string                  `json:"message,omitempty"`
	Estimate *types.EmissionEstimate `json:"estimate,omitempty"`
}

// FactorsResponse is the structured result of list_emission_factors
type FactorsResponse struct {
	Factors     map[string]float64 `json:"factors"`
	OriginBonus map[string]float64 `json:"origin_bonus"`
}

// NewServer creates the MCP server. products backs the /health check and may be nil.
func NewServer(estimator *estimate.Estimator, products query.QueryEngine, logger *slog.Logger) *Server {
	mcpServer := server.NewMCPServer(
		"Carbon Footprint MCP Server",
		version.Tag(),
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		estimator: estimator,
		products:  products,
		log:       logger,
	}

	s.addTools()

	return s
}

// checkHealthWithCache checks the product source at most once every 10 seconds
func (s *Server) checkHealthWithCache(ctx context.Context) error {
	s.healthMu.RLock()
	if time.Since(s.lastHealthCheck) < healthCacheDuration {
		err := s.lastHealthError
		s.healthMu.RUnlock()
		s.log.Debug("Health check: using cached result",
			"cached_error", err != nil,
			"cache_age", time.Since(s.lastHealthCheck))
		return err
	}
	s.healthMu.RUnlock()

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	// Another goroutine may have refreshed while we waited for the write lock
	if time.Since(s.lastHealthCheck) < healthCacheDuration {
		return s.lastHealthError
	}

	var err error
	if s.products != nil {
		s.log.Debug("Health check: probing product source")
		err = s.products.TestConnection(ctx)
	}
	s.lastHealthCheck = time.Now()
	s.lastHealthError = err

	return err
}

func (s *Server) addTools() {
	barcodeTool := mcp.NewTool("estimate_from_barcode",
		mcp.WithDescription("Estimate the carbon footprint of a product from its barcode (UPC/EAN) using the Open Food Facts database. Returns materials, weight, origin, kg CO2e and a confidence score."),
		mcp.WithString("barcode",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("The barcode (UPC/EAN) of the product"),
		),
		mcp.WithOutputSchema[EstimateResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(barcodeTool, s.handleEstimateFromBarcode)

	imageTool := mcp.NewTool("estimate_from_image",
		mcp.WithDescription("Estimate the carbon footprint of a product from a photograph. The image is analyzed by a vision model; missing details are filled with documented defaults and up to 3 lower-emission alternatives are ranked by savings."),
		mcp.WithString("image",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("The product photo as base64 or as a data URL (data:image/jpeg;base64,...). JPEG, PNG, GIF and WebP are supported."),
		),
		mcp.WithOutputSchema[EstimateResponse](),
	)
	s.mcpServer.AddTool(imageTool, s.handleEstimateFromImage)

	factorsTool := mcp.NewTool("list_emission_factors",
		mcp.WithDescription("List the emission factors (kg CO2 per kg of material) and origin manufacturing bonuses used by the estimator"),
		mcp.WithOutputSchema[FactorsResponse](),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(factorsTool, s.handleListEmissionFactors)
}

func (s *Server) handleEstimateFromBarcode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	barcode, err := request.RequireString("barcode")
	if err != nil {
		s.log.Warn("handleEstimateFromBarcode: Missing 'barcode' parameter", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'barcode': %v", err)), nil
	}

	s.log.Debug("MCP EstimateFromBarcode called", "barcode", barcode)

	est, err := s.estimator.EstimateFromBarcode(ctx, barcode)
	if errors.Is(err, types.ErrNotFound) {
		return structured(EstimateResponse{Found: false, Message: estimate.UserMessage(err)})
	}
	if err != nil {
		return mcp.NewToolResultError(estimate.UserMessage(err)), nil
	}

	return structured(EstimateResponse{Found: true, Estimate: est})
}

func (s *Server) handleEstimateFromImage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	image, err := request.RequireString("image")
	if err != nil {
		s.log.Warn("handleEstimateFromImage: Missing 'image' parameter", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'image': %v", err)), nil
	}

	s.log.Debug("MCP EstimateFromImage called", "image_length", len(image))

	est, err := s.estimator.EstimateFromImage(ctx, []byte(image))
	if err != nil {
		return mcp.NewToolResultError(estimate.UserMessage(err)), nil
	}

	return structured(EstimateResponse{Found: true, Estimate: est})
}

func (s *Server) handleListEmissionFactors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := s.estimator.Table()
	return structured(FactorsResponse{Factors: table.Factors, OriginBonus: table.OriginBonus})
}

// structured returns both structured content and an indented JSON text fallback
func structured(response any) (*mcp.CallToolResult, error) {
	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultStructured(response, string(responseJSON)), nil
}

// Handler returns the HTTP routes: /health and the stateless streamable /mcp endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := s.checkHealthWithCache(r.Context()); err != nil {
			s.log.Error("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "healthy",
			"version": version.Tag(),
		})
	})

	streamableServer := server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
	)

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovery := recover(); recovery != nil {
				s.log.Error("MCP endpoint panic recovered",
					"panic", recovery,
					"method", r.Method,
					"remote_addr", r.RemoteAddr)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("Internal Server Error"))
			}
		}()

		s.log.Debug("MCP request received",
			"method", r.Method,
			"content_type", r.Header.Get("Content-Type"),
			"content_length", r.ContentLength,
			"remote_addr", r.RemoteAddr)

		recorder := &responseRecorder{ResponseWriter: w}
		streamableServer.ServeHTTP(recorder, r)

		s.log.Debug("MCP response sent",
			"status_code", recorder.statusCode,
			"response_size", recorder.bytesWritten,
			"content_type", recorder.Header().Get("Content-Type"))
	})

	return mux
}

// ServeHTTP serves the MCP server over HTTP until ctx is cancelled
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: httpReadTimeout,
		IdleTimeout: httpIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting MCP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("Shutting down MCP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ServeStdio serves the MCP server over stdio
func (s *Server) ServeStdio() error {
	s.log.Info("Starting MCP server in stdio mode")
	return server.ServeStdio(s.mcpServer)
}
