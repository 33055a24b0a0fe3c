package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

// Run against a server started with PRODUCT_SOURCE=mock:
//
//	PRODUCT_SOURCE=mock go run ./cmd/carbon-footprint-mcp-server &
//	cd test/acceptance && go run .
const (
	defaultServerURL = "http://localhost:8080"
	maxDuration      = 1 * time.Second
	concurrency      = 10
	requestsPerUser  = 5
)

type MCPRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type InitializeParams struct {
	ProtocolVersion string            `json:"protocolVersion"`
	Capabilities    map[string]any    `json:"capabilities"`
	ClientInfo      map[string]string `json:"clientInfo"`
}

type CallToolParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// BarcodeCase is a mock catalogue entry and the estimate it must produce
type BarcodeCase struct {
	Barcode string
	Label   string
	Found   bool
	CO2Kg   float64
}

var barcodeCases = []BarcodeCase{
	{Barcode: "7376280645025", Label: "Organic Beef", Found: true, CO2Kg: 27.0},
	{Barcode: "0417890019578", Label: "Plant-based Burger", Found: true, CO2Kg: 3.5},
	{Barcode: "0490000425668", Label: "Coca Cola 330ml", Found: true, CO2Kg: 0.5},
	{Barcode: "3017620422003", Label: "Nutella (heuristic)", Found: true, CO2Kg: 0.48},
	{Barcode: "0000000000000", Label: "Unknown product", Found: false},
}

var serverURL = defaultServerURL

func main() {
	if url := os.Getenv("ACCEPTANCE_SERVER_URL"); url != "" {
		serverURL = url
	}

	fmt.Printf("🧪 Carbon Footprint MCP acceptance test against %s\n\n", serverURL)

	steps := []struct {
		name string
		run  func() error
	}{
		{"health endpoint", testHealth},
		{"MCP initialize", testInitialize},
		{"tools/list", testToolsList},
		{"estimate_from_barcode", testBarcodeEstimates},
		{"list_emission_factors", testFactors},
		{"concurrent load", testConcurrentLoad},
	}

	for i, step := range steps {
		fmt.Printf("%d. Testing %s...\n", i+1, step.name)
		if err := step.run(); err != nil {
			fmt.Printf("❌ %s failed: %v\n", step.name, err)
			os.Exit(1)
		}
		fmt.Printf("✅ %s passed\n\n", step.name)
	}

	fmt.Printf("🎉 All acceptance tests passed!\n")
}

func testHealth() error {
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	return nil
}

func testInitialize() error {
	result, err := call(MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    map[string]any{},
			ClientInfo:      map[string]string{"name": "acceptance", "version": "1.0.0"},
		},
	})
	if err != nil {
		return err
	}
	if _, ok := result["serverInfo"]; !ok {
		return fmt.Errorf("initialize result has no serverInfo")
	}
	return nil
}

func testToolsList() error {
	result, err := call(MCPRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	if err != nil {
		return err
	}

	tools, _ := result["tools"].([]any)
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if tool, ok := t.(map[string]any); ok {
			names = append(names, fmt.Sprint(tool["name"]))
		}
	}
	sort.Strings(names)

	want := []string{"estimate_from_barcode", "estimate_from_image", "list_emission_factors"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		return fmt.Errorf("tools = %v, want %v", names, want)
	}
	return nil
}

func testBarcodeEstimates() error {
	for i, c := range barcodeCases {
		start := time.Now()
		structured, err := estimateBarcode(c.Barcode, 100+i)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Label, err)
		}
		duration := time.Since(start)

		if found, _ := structured["found"].(bool); found != c.Found {
			return fmt.Errorf("%s: found = %v, want %v", c.Label, found, c.Found)
		}
		if c.Found {
			estimate, _ := structured["estimate"].(map[string]any)
			if co2, _ := estimate["co2_kg"].(float64); co2 != c.CO2Kg {
				return fmt.Errorf("%s: co2_kg = %v, want %v", c.Label, co2, c.CO2Kg)
			}
		}
		if duration > maxDuration {
			return fmt.Errorf("%s took %v, expected under %v", c.Label, duration, maxDuration)
		}
		fmt.Printf("   ✓ %s (%.3fs)\n", c.Label, duration.Seconds())
	}
	return nil
}

func testFactors() error {
	result, err := call(MCPRequest{
		JSONRPC: "2.0",
		ID:      3,
		Method:  "tools/call",
		Params:  CallToolParams{Name: "list_emission_factors"},
	})
	if err != nil {
		return err
	}

	structured, _ := result["structuredContent"].(map[string]any)
	factors, _ := structured["factors"].(map[string]any)
	if factors["plastic"] != 6.0 || factors["default"] != 5.0 {
		return fmt.Errorf("unexpected factors: %v", factors)
	}
	return nil
}

func testConcurrentLoad() error {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		durations []time.Duration
		failures  []string
	)

	for user := 0; user < concurrency; user++ {
		wg.Add(1)
		go func(user int) {
			defer wg.Done()
			for n := 0; n < requestsPerUser; n++ {
				c := barcodeCases[(user+n)%len(barcodeCases)]
				start := time.Now()
				_, err := estimateBarcode(c.Barcode, 1000+user*requestsPerUser+n)
				elapsed := time.Since(start)

				mu.Lock()
				durations = append(durations, elapsed)
				if err != nil {
					failures = append(failures, fmt.Sprintf("%s: %v", c.Label, err))
				}
				mu.Unlock()
			}
		}(user)
	}
	wg.Wait()

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d requests failed, first: %s", len(failures), len(durations), failures[0])
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := durations[len(durations)*95/100]
	fmt.Printf("   📊 %d requests, median %v, p95 %v\n", len(durations), durations[len(durations)/2], p95)
	if p95 > maxDuration {
		return fmt.Errorf("p95 %v exceeds %v", p95, maxDuration)
	}
	return nil
}

func estimateBarcode(barcode string, id int) (map[string]any, error) {
	result, err := call(MCPRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "tools/call",
		Params: CallToolParams{
			Name:      "estimate_from_barcode",
			Arguments: map[string]string{"barcode": barcode},
		},
	})
	if err != nil {
		return nil, err
	}
	if isError, _ := result["isError"].(bool); isError {
		return nil, fmt.Errorf("tool returned error: %v", result["content"])
	}

	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool result has no structuredContent")
	}
	return structured, nil
}

// call posts one JSON-RPC request to /mcp and returns its result object
func call(req MCPRequest) (map[string]any, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, serverURL+"/mcp", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expected status 200, got %d: %s", resp.StatusCode, string(body))
	}

	var rpc struct {
		Result map[string]any `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpc); err != nil {
		return nil, fmt.Errorf("failed to parse MCP response JSON: %w", err)
	}
	if rpc.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpc.Error.Code, rpc.Error.Message)
	}
	return rpc.Result, nil
}
