package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/miethe/deal-brain-sub014/internal/domain"
	"github.com/miethe/deal-brain-sub014/internal/repository"
	"github.com/miethe/deal-brain-sub014/internal/rules"
)

// valuationCacheTTL bounds how long a cached valuation is served before
// recomputing. Fingerprints already capture ruleset version and listing
// content, so the TTL only limits staleness against out-of-band reloads.
const valuationCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	engine      *rules.Engine
	rulesetPath string
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, rulesetPath, version string) *Handler {
	return &Handler{
		repo:        repo,
		cache:       cache,
		bus:         bus,
		engine:      engine,
		rulesetPath: rulesetPath,
		version:     version,
	}
}

// EvaluateRequest is the request body for POST /evaluate. Either a loaded
// ruleset is referenced by ID, or an inline ruleset definition is supplied
// for ad-hoc evaluation.
type EvaluateRequest struct {
	RulesetID  string                    `json:"rulesetId,omitempty"`
	Ruleset    *domain.Ruleset           `json:"ruleset,omitempty"`
	ListingID  string                    `json:"listingId,omitempty"`
	BasePrice  float64                   `json:"basePrice"`
	Listing    map[string]any            `json:"listing"`
	Components map[string]map[string]any `json:"components,omitempty"`
}

// Evaluate handles POST /evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	// Parse request
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate required fields
	if req.RulesetID == "" && req.Ruleset == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rulesetId or ruleset is required",
		})
		return
	}
	if req.BasePrice < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "basePrice must be non-negative",
		})
		return
	}

	lc := domain.NewListingContext(req.Listing, req.Components)
	input := &rules.EvaluateInput{
		ListingID: req.ListingID,
		BasePrice: req.BasePrice,
		Context:   lc,
		TraceID:   traceID,
	}

	// Inline rulesets bypass the engine's loaded set and the result cache:
	// the fingerprint keys on ruleset id+version, which an ad-hoc
	// definition does not reliably carry.
	if req.Ruleset != nil {
		valuation, err := h.engine.EvaluateRuleset(ctx, req.Ruleset, input)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, valuation.ToResponse())
		return
	}

	rs := h.loadedRuleset(req.RulesetID)
	if rs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "ruleset not loaded: " + req.RulesetID,
		})
		return
	}

	fingerprint := rules.Fingerprint(rs.ID, rs.Version, lc, req.BasePrice)
	if h.cache != nil {
		if cached, err := h.cache.GetValuation(ctx, fingerprint); err == nil && cached != nil {
			cached.Metadata.CacheHit = true
			writeJSON(w, http.StatusOK, cached.ToResponse())
			return
		}
	}

	valuation, err := h.engine.Evaluate(ctx, req.RulesetID, input)
	if err != nil {
		slog.Error("valuation failed", "ruleset_id", req.RulesetID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "valuation failed",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetValuation(ctx, fingerprint, valuation, valuationCacheTTL); err != nil {
			slog.Warn("failed to cache valuation", "error", err)
		}
	}

	h.persist(ctx, &req, valuation)
	h.publishCompleted(ctx, valuation)

	writeJSON(w, http.StatusOK, valuation.ToResponse())
}

// BatchEvaluateRequest is the request body for POST /evaluate/batch.
type BatchEvaluateRequest struct {
	RulesetID string              `json:"rulesetId"`
	Listings  []BatchListingInput `json:"listings"`
}

// BatchListingInput is one listing within a batch request.
type BatchListingInput struct {
	ListingID  string                    `json:"listingId,omitempty"`
	BasePrice  float64                   `json:"basePrice"`
	Listing    map[string]any            `json:"listing"`
	Components map[string]map[string]any `json:"components,omitempty"`
}

// maxBatchSize caps one batch request.
const maxBatchSize = 1000

// EvaluateBatch handles POST /evaluate/batch requests. The whole batch runs
// against one ruleset; results come back in input order.
func (h *Handler) EvaluateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req BatchEvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.RulesetID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rulesetId is required",
		})
		return
	}
	if len(req.Listings) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "listings must not be empty",
		})
		return
	}
	if len(req.Listings) > maxBatchSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "batch exceeds maximum size of " + strconv.Itoa(maxBatchSize),
		})
		return
	}

	inputs := make([]*rules.EvaluateInput, len(req.Listings))
	for i, l := range req.Listings {
		inputs[i] = &rules.EvaluateInput{
			ListingID: l.ListingID,
			BasePrice: l.BasePrice,
			Context:   domain.NewListingContext(l.Listing, l.Components),
			TraceID:   traceID,
		}
	}

	valuations, err := h.engine.EvaluateBatch(ctx, req.RulesetID, inputs)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": err.Error(),
		})
		return
	}

	results := make([]*domain.ValuationResponse, len(valuations))
	for i, v := range valuations {
		if h.repo != nil && v.ListingID != "" {
			if err := h.repo.SaveValuation(ctx, v); err != nil {
				slog.Error("failed to save valuation", "valuation_id", v.ID, "error", err)
			}
		}
		results[i] = v.ToResponse()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(results),
		"results": results,
	})
}

// persist saves the listing snapshot and valuation. Save failures are
// logged, not surfaced: the evaluation result still reaches the caller.
// Ad-hoc requests without a listing ID leave nothing to persist.
func (h *Handler) persist(ctx context.Context, req *EvaluateRequest, v *domain.Valuation) {
	if h.repo == nil || req.ListingID == "" {
		return
	}

	title, _ := req.Listing["title"].(string)
	record := &domain.ListingRecord{
		ID:        req.ListingID,
		Title:     title,
		ListPrice: req.BasePrice,
		Currency:  "USD",
		Context:   domain.NewListingContext(req.Listing, req.Components),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.SaveListing(ctx, record); err != nil {
		slog.Error("failed to save listing snapshot", "listing_id", req.ListingID, "error", err)
	}
	if err := h.repo.SaveValuation(ctx, v); err != nil {
		slog.Error("failed to save valuation", "valuation_id", v.ID, "error", err)
	}
}

// publishCompleted emits a valuation-completed event for downstream
// consumers (repricing, analytics).
func (h *Handler) publishCompleted(ctx context.Context, v *domain.Valuation) {
	if h.bus == nil || v.ListingID == "" {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"valuationId":   v.ID,
		"listingId":     v.ListingID,
		"rulesetId":     v.RulesetID,
		"basePrice":     v.BasePrice,
		"adjustedPrice": v.AdjustedPrice,
	})
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, domain.TopicValuationCompleted, payload); err != nil {
		slog.Error("failed to publish valuation completed", "valuation_id", v.ID, "error", err)
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check event bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetValuation retrieves a valuation snapshot by ID.
func (h *Handler) GetValuation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	valuationID := chi.URLParam(r, "id")

	if valuationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "valuation id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	v, err := h.repo.GetValuation(ctx, valuationID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get valuation", "id", valuationID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "valuation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// ListListingValuations returns a listing's valuation history, newest
// first. The optional ?limit= query parameter caps the page size.
func (h *Handler) ListListingValuations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID := chi.URLParam(r, "id")

	if listingID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "listing id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	valuations, err := h.repo.ListValuationsByListing(ctx, listingID, limit)
	if err != nil {
		slog.Error("failed to list valuations", "listing_id", listingID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list valuations",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"listingId":  listingID,
		"count":      len(valuations),
		"valuations": valuations,
	})
}

// ListRulesets returns all rulesets currently loaded in the engine.
// Rulesets are loaded from the ruleset file at startup and can be reloaded
// via POST /rulesets/reload.
func (h *Handler) ListRulesets(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.GetLoadedRulesets()

	writeJSON(w, http.StatusOK, map[string]any{
		"rulesets": loaded,
		"count":    len(loaded),
		"source":   "file",
	})
}

// ValidateRuleset checks a ruleset definition without loading it and
// returns the issues found.
func (h *Handler) ValidateRuleset(w http.ResponseWriter, r *http.Request) {
	var rs domain.Ruleset
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	issues := h.engine.ValidateRuleset(&rs)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  len(issues) == 0,
		"issues": issues,
	})
}

// ReloadRulesets re-reads the ruleset file and swaps the engine's loaded
// set atomically. This enables hot-reloading without server restart.
func (h *Handler) ReloadRulesets(w http.ResponseWriter, r *http.Request) {
	if h.rulesetPath == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no ruleset file configured",
		})
		return
	}

	rulesets, err := rules.LoadRulesetsFile(h.rulesetPath)
	if err != nil {
		slog.Error("failed to load ruleset file", "path", h.rulesetPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load ruleset file",
		})
		return
	}

	if err := h.engine.ReloadRulesets(rulesets); err != nil {
		slog.Error("failed to reload rulesets", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rulesets: " + err.Error(),
		})
		return
	}

	slog.Info("rulesets reloaded from file", "path", h.rulesetPath, "count", h.engine.RulesetCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rulesets reloaded successfully",
		"count":   h.engine.RulesetCount(),
	})
}

// loadedRuleset finds a loaded ruleset definition by ID.
func (h *Handler) loadedRuleset(id string) *domain.Ruleset {
	for _, rs := range h.engine.GetLoadedRulesets() {
		if rs.ID == id {
			return rs
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
