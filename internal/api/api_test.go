package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/miethe/deal-brain-sub014/internal/bus"
	"github.com/miethe/deal-brain-sub014/internal/cache"
	"github.com/miethe/deal-brain-sub014/internal/domain"
	"github.com/miethe/deal-brain-sub014/internal/fields"
	"github.com/miethe/deal-brain-sub014/internal/repository"
	"github.com/miethe/deal-brain-sub014/internal/rules"
)

func testRuleset() *domain.Ruleset {
	return &domain.Ruleset{
		ID:      "rs-api",
		Name:    "API Test Strategy",
		Version: "1",
		Enabled: true,
		Groups: []domain.RuleGroup{
			{
				ID:   "grp-ram",
				Name: "RAM",
				Rules: []domain.Rule{
					{
						ID:   "r-ram-16",
						Name: "16-32GB RAM",
						Condition: &domain.ConditionNode{
							Field:    "ram_gb",
							Operator: domain.OpBetween,
							Values:   []any{16.0, 32.0},
						},
						Actions: []domain.Action{
							{Type: domain.ActionFixedValue, Amount: 40},
						},
					},
				},
			},
		},
	}
}

// createTestServer wires a server over a temp SQLite repository, in-memory
// cache and channel bus, with one ruleset loaded.
func createTestServer(t *testing.T) (*Server, *rules.Engine) {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c, err := cache.New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	eventBus := bus.NewChannelBus(16)
	t.Cleanup(func() { eventBus.Close() })

	engine := rules.NewEngine(fields.NewResolver(fields.DefaultSchema()), domain.EngineConfig{})
	if err := engine.LoadRuleset(testRuleset()); err != nil {
		t.Fatalf("failed to load ruleset: %v", err)
	}

	return NewServer(cfg, repo, c, eventBus, engine, "", "test-v1"), engine
}

func postJSON(t *testing.T, server *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func getPath(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestEvaluateEndpoint(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("SuccessfulEvaluation", func(t *testing.T) {
		rr := postJSON(t, server, "/evaluate", EvaluateRequest{
			RulesetID: "rs-api",
			ListingID: "lst-001",
			BasePrice: 300,
			Listing:   map[string]any{"title": "Test Mini PC", "ram_gb": 24.0},
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.ValuationResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.ValuationID == "" {
			t.Error("expected valuationId in response")
		}
		if resp.AdjustedPrice != 340.0 {
			t.Errorf("expected adjusted price 340, got %v", resp.AdjustedPrice)
		}
		if resp.Delta != 40.0 {
			t.Errorf("expected delta 40, got %v", resp.Delta)
		}
		if len(resp.Breakdown) != 1 {
			t.Errorf("expected 1 breakdown entry, got %d", len(resp.Breakdown))
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingRuleset", func(t *testing.T) {
		rr := postJSON(t, server, "/evaluate", EvaluateRequest{
			BasePrice: 300,
			Listing:   map[string]any{"ram_gb": 24.0},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeBasePrice", func(t *testing.T) {
		rr := postJSON(t, server, "/evaluate", EvaluateRequest{
			RulesetID: "rs-api",
			BasePrice: -1,
			Listing:   map[string]any{"ram_gb": 24.0},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownRuleset", func(t *testing.T) {
		rr := postJSON(t, server, "/evaluate", EvaluateRequest{
			RulesetID: "rs-missing",
			BasePrice: 300,
			Listing:   map[string]any{"ram_gb": 24.0},
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestEvaluateCacheHit(t *testing.T) {
	server, _ := createTestServer(t)

	body := EvaluateRequest{
		RulesetID: "rs-api",
		ListingID: "lst-cache",
		BasePrice: 300,
		Listing:   map[string]any{"ram_gb": 24.0},
	}

	first := postJSON(t, server, "/evaluate", body)
	if first.Code != http.StatusOK {
		t.Fatalf("first request failed: %d %s", first.Code, first.Body.String())
	}
	var firstResp domain.ValuationResponse
	if err := json.Unmarshal(first.Body.Bytes(), &firstResp); err != nil {
		t.Fatalf("failed to parse first response: %v", err)
	}
	if firstResp.Metadata.CacheHit {
		t.Error("first request should not be a cache hit")
	}

	second := postJSON(t, server, "/evaluate", body)
	if second.Code != http.StatusOK {
		t.Fatalf("second request failed: %d %s", second.Code, second.Body.String())
	}
	var secondResp domain.ValuationResponse
	if err := json.Unmarshal(second.Body.Bytes(), &secondResp); err != nil {
		t.Fatalf("failed to parse second response: %v", err)
	}

	if !secondResp.Metadata.CacheHit {
		t.Error("second identical request should be a cache hit")
	}
	if secondResp.AdjustedPrice != firstResp.AdjustedPrice {
		t.Errorf("cached adjusted price %v differs from original %v",
			secondResp.AdjustedPrice, firstResp.AdjustedPrice)
	}
	if secondResp.ValuationID != firstResp.ValuationID {
		t.Errorf("cached valuation id %s differs from original %s",
			secondResp.ValuationID, firstResp.ValuationID)
	}
}

func TestEvaluateInlineRuleset(t *testing.T) {
	server, engine := createTestServer(t)

	inline := testRuleset()
	inline.ID = "rs-inline"
	inline.Groups[0].Rules[0].Actions[0].Amount = 75

	rr := postJSON(t, server, "/evaluate", EvaluateRequest{
		Ruleset:   inline,
		BasePrice: 200,
		Listing:   map[string]any{"ram_gb": 16.0},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp domain.ValuationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.AdjustedPrice != 275.0 {
		t.Errorf("expected adjusted price 275, got %v", resp.AdjustedPrice)
	}

	// Inline rulesets must not end up loaded.
	if got := engine.RulesetCount(); got != 1 {
		t.Errorf("expected 1 loaded ruleset, got %d", got)
	}
}

func TestEvaluateBatchEndpoint(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("OrderedResults", func(t *testing.T) {
		rr := postJSON(t, server, "/evaluate/batch", BatchEvaluateRequest{
			RulesetID: "rs-api",
			Listings: []BatchListingInput{
				{ListingID: "b-1", BasePrice: 100, Listing: map[string]any{"ram_gb": 24.0}},
				{ListingID: "b-2", BasePrice: 200, Listing: map[string]any{"ram_gb": 8.0}},
				{ListingID: "b-3", BasePrice: 300, Listing: map[string]any{"ram_gb": 32.0}},
			},
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Count   int                         `json:"count"`
			Results []*domain.ValuationResponse `json:"results"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 3 {
			t.Fatalf("expected 3 results, got %d", resp.Count)
		}

		want := []float64{140, 200, 340}
		for i, w := range want {
			if resp.Results[i].AdjustedPrice != w {
				t.Errorf("result %d: expected adjusted price %v, got %v", i, w, resp.Results[i].AdjustedPrice)
			}
		}
	})

	t.Run("EmptyListings", func(t *testing.T) {
		rr := postJSON(t, server, "/evaluate/batch", BatchEvaluateRequest{RulesetID: "rs-api"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownRuleset", func(t *testing.T) {
		rr := postJSON(t, server, "/evaluate/batch", BatchEvaluateRequest{
			RulesetID: "rs-missing",
			Listings: []BatchListingInput{
				{BasePrice: 100, Listing: map[string]any{"ram_gb": 24.0}},
			},
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestValuationHistoryEndpoints(t *testing.T) {
	server, _ := createTestServer(t)

	rr := postJSON(t, server, "/evaluate", EvaluateRequest{
		RulesetID: "rs-api",
		ListingID: "lst-history",
		BasePrice: 300,
		Listing:   map[string]any{"title": "History PC", "ram_gb": 24.0},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("evaluate failed: %d %s", rr.Code, rr.Body.String())
	}
	var evalResp domain.ValuationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &evalResp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	t.Run("GetValuation", func(t *testing.T) {
		rr := getPath(t, server, "/valuations/"+evalResp.ValuationID)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var v domain.Valuation
		if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if v.ListingID != "lst-history" {
			t.Errorf("expected listing lst-history, got %s", v.ListingID)
		}
		if v.AdjustedPrice != 340.0 {
			t.Errorf("expected adjusted price 340, got %v", v.AdjustedPrice)
		}
	})

	t.Run("GetValuationNotFound", func(t *testing.T) {
		rr := getPath(t, server, "/valuations/no-such-valuation")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ListByListing", func(t *testing.T) {
		rr := getPath(t, server, "/listings/lst-history/valuations")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			ListingID  string              `json:"listingId"`
			Count      int                 `json:"count"`
			Valuations []*domain.Valuation `json:"valuations"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("expected 1 valuation, got %d", resp.Count)
		}
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		rr := getPath(t, server, "/listings/lst-history/valuations?limit=zero")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestListRulesetsEndpoint(t *testing.T) {
	server, _ := createTestServer(t)

	rr := getPath(t, server, "/rulesets")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Count    int               `json:"count"`
		Rulesets []*domain.Ruleset `json:"rulesets"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 1 || len(resp.Rulesets) != 1 {
		t.Fatalf("expected 1 ruleset, got %d", resp.Count)
	}
	if resp.Rulesets[0].ID != "rs-api" {
		t.Errorf("expected ruleset rs-api, got %s", resp.Rulesets[0].ID)
	}
}

func TestValidateRulesetEndpoint(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("CleanRuleset", func(t *testing.T) {
		rr := postJSON(t, server, "/rulesets/validate", testRuleset())
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Valid  bool                    `json:"valid"`
			Issues []rules.ValidationIssue `json:"issues"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if !resp.Valid {
			t.Errorf("expected valid ruleset, got issues %v", resp.Issues)
		}
	})

	t.Run("BrokenFormula", func(t *testing.T) {
		rs := testRuleset()
		rs.Groups[0].Rules[0].Actions = []domain.Action{
			{Type: domain.ActionFormula, Formula: "ram_gb * ("},
		}

		rr := postJSON(t, server, "/rulesets/validate", rs)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Valid  bool                    `json:"valid"`
			Issues []rules.ValidationIssue `json:"issues"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Valid {
			t.Error("expected invalid ruleset")
		}
		if len(resp.Issues) == 0 {
			t.Error("expected at least one issue")
		}
	})
}

func TestReloadRulesetsEndpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rulesets.json")

	first := testRuleset()
	second := testRuleset()
	second.ID = "rs-extra"
	data, err := json.Marshal([]*domain.Ruleset{first, second})
	if err != nil {
		t.Fatalf("failed to marshal rulesets: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write ruleset file: %v", err)
	}

	engine := rules.NewEngine(fields.NewResolver(fields.DefaultSchema()), domain.EngineConfig{})
	server := NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, nil, nil, nil, engine, path, "test-v1")

	rr := postJSON(t, server, "/rulesets/reload", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := engine.RulesetCount(); got != 2 {
		t.Errorf("expected 2 loaded rulesets, got %d", got)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rr := getPath(t, server, "/health")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy status, got %s", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rr := getPath(t, server, "/ready")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestTraceHeaders(t *testing.T) {
	server, _ := createTestServer(t)

	rr := getPath(t, server, "/health")
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
	if rr.Header().Get(TraceIDHeader) == "" {
		t.Error("expected X-Trace-ID response header")
	}
}
