// Package worker provides the async valuation pipeline.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/miethe/deal-brain-sub014/internal/domain"
	"github.com/miethe/deal-brain-sub014/internal/rules"
)

// Worker values freshly ingested listings asynchronously from the
// EventBus: evaluate the active ruleset, persist the snapshot, publish
// the outcome.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *rules.Engine
	cfg    Config

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// RulesetID is the ruleset applied to ingested listings.
	RulesetID string

	// RepriceThresholdPct: publish a reprice event when the adjusted
	// price moves from the listing price by more than this percentage.
	RepriceThresholdPct float64
}

// NewWorker creates a new async valuation worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *rules.Engine, cfg Config) *Worker {
	if cfg.RepriceThresholdPct <= 0 {
		cfg.RepriceThresholdPct = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: engine,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the listing-ingested topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicListingIngested, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicListingIngested, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("valuation worker started",
		"topic", domain.TopicListingIngested,
		"ruleset_id", w.cfg.RulesetID,
	)
	return nil
}

// ListingMessage is the payload for listing-ingested events.
type ListingMessage struct {
	ListingID  string                    `json:"listingId"`
	Title      string                    `json:"title"`
	ListPrice  float64                   `json:"listPrice"`
	Currency   string                    `json:"currency"`
	Listing    map[string]any            `json:"listing"`
	Components map[string]map[string]any `json:"components,omitempty"`
	TraceID    string                    `json:"traceId,omitempty"`
}

// ValuationEvent is the payload for valuation-completed and
// valuation-repriced events.
type ValuationEvent struct {
	ValuationID   string  `json:"valuationId"`
	ListingID     string  `json:"listingId"`
	RulesetID     string  `json:"rulesetId"`
	BasePrice     float64 `json:"basePrice"`
	AdjustedPrice float64 `json:"adjustedPrice"`
	DeltaPct      float64 `json:"deltaPct"`
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var lm ListingMessage
	if err := json.Unmarshal(msg.Payload, &lm); err != nil {
		slog.Error("failed to parse listing message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if lm.ListingID == "" {
		slog.Error("listing message has no listing id", "message_id", msg.ID)
		return fmt.Errorf("listing id is required")
	}

	traceID := lm.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	lc := domain.NewListingContext(lm.Listing, lm.Components)

	// 1. Evaluate the active ruleset
	valuation, err := w.engine.Evaluate(ctx, w.cfg.RulesetID, &rules.EvaluateInput{
		ListingID: lm.ListingID,
		BasePrice: lm.ListPrice,
		Context:   lc,
		TraceID:   traceID,
	})
	if err != nil {
		slog.Error("valuation failed",
			"listing_id", lm.ListingID,
			"ruleset_id", w.cfg.RulesetID,
			"error", err,
		)
		return err
	}

	// 2. Persist the listing and valuation snapshots
	if w.repo != nil {
		record := &domain.ListingRecord{
			ID:        lm.ListingID,
			Title:     lm.Title,
			ListPrice: lm.ListPrice,
			Currency:  lm.Currency,
			Context:   lc,
			CreatedAt: time.Now().UTC(),
		}
		if err := w.repo.SaveListing(ctx, record); err != nil {
			slog.Error("failed to save listing snapshot",
				"listing_id", lm.ListingID,
				"error", err,
			)
		}
		if err := w.repo.SaveValuation(ctx, valuation); err != nil {
			slog.Error("failed to save valuation",
				"listing_id", lm.ListingID,
				"valuation_id", valuation.ID,
				"error", err,
			)
		}
	}

	// 3. Publish outcome events
	event := ValuationEvent{
		ValuationID:   valuation.ID,
		ListingID:     lm.ListingID,
		RulesetID:     valuation.RulesetID,
		BasePrice:     valuation.BasePrice,
		AdjustedPrice: valuation.AdjustedPrice,
		DeltaPct:      deltaPct(lm.ListPrice, valuation.AdjustedPrice),
	}
	payload, _ := json.Marshal(event)

	if err := w.bus.Publish(ctx, domain.TopicValuationCompleted, payload); err != nil {
		slog.Error("failed to publish valuation completed",
			"listing_id", lm.ListingID,
			"error", err,
		)
	}

	if math.Abs(event.DeltaPct) > w.cfg.RepriceThresholdPct {
		if err := w.bus.Publish(ctx, domain.TopicValuationRepriced, payload); err != nil {
			slog.Error("failed to publish reprice event",
				"listing_id", lm.ListingID,
				"error", err,
			)
		}
	}

	slog.Info("listing valued",
		"listing_id", lm.ListingID,
		"valuation_id", valuation.ID,
		"adjusted_price", valuation.AdjustedPrice,
		"delta_pct", event.DeltaPct,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// deltaPct is the adjusted price's percentage move from the listing
// price. A listing with no price cannot reprice.
func deltaPct(listPrice, adjusted float64) float64 {
	if listPrice == 0 {
		return 0
	}
	return (adjusted - listPrice) / listPrice * 100
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("valuation worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
