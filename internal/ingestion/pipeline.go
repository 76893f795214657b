// Package ingestion feeds provider transaction payloads through
// classification, deduplication, and fan-out.
package ingestion

import (
	"log"
	"sync"
	"time"

	"token-buy-monitor/internal/broadcast"
	"token-buy-monitor/internal/dedup"
	"token-buy-monitor/internal/detection"
	"token-buy-monitor/internal/domain"
	"token-buy-monitor/internal/observability"
	"token-buy-monitor/internal/solana"
	"token-buy-monitor/internal/storage"
)

// Pipeline runs every incoming transaction through the same classify,
// dedup, store, broadcast sequence regardless of which source delivered
// it. A single mutex serializes the dedup gate and downstream effects, so
// a signature arriving from two sources at once still emits exactly once.
type Pipeline struct {
	classifier  *detection.Classifier
	window      *dedup.Window
	store       storage.BuyEventStore
	broadcaster *broadcast.Broadcaster
	logger      *log.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Received        uint64 `json:"received"`
	Processed       uint64 `json:"processed"`
	Skipped         uint64 `json:"skipped"`
	Duplicates      uint64 `json:"duplicates"`
	BuysDetected    uint64 `json:"buysDetected"`
	Errors          uint64 `json:"errors"`
	EnrichmentDrops uint64 `json:"enrichmentDrops"`
}

// PipelineOptions contains configuration for creating a Pipeline.
type PipelineOptions struct {
	Classifier  *detection.Classifier
	Window      *dedup.Window
	Store       storage.BuyEventStore
	Broadcaster *broadcast.Broadcaster
	Logger      *log.Logger
}

// NewPipeline creates a processing pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		classifier:  opts.Classifier,
		window:      opts.Window,
		store:       opts.Store,
		broadcaster: opts.Broadcaster,
		logger:      logger,
	}
}

// Process classifies one transaction and emits any buys it contains.
// Returns the number of buy events emitted.
func (p *Pipeline) Process(tx *solana.TransactionRecord, source domain.Source) int {
	start := time.Now()
	observability.RecordReceived(source.String())

	p.mu.Lock()
	p.stats.Received++
	p.mu.Unlock()

	if tx == nil || tx.ID() == "" {
		p.skip("malformed")
		return 0
	}
	if tx.Failed() {
		p.skip("failed_tx")
		return 0
	}

	buys := p.classifier.ClassifyRecord(tx)

	p.mu.Lock()
	p.stats.Processed++
	p.mu.Unlock()

	if len(buys) == 0 {
		p.skip("no_buy")
		return 0
	}

	timestamp := time.Now()
	if tx.Timestamp > 0 {
		timestamp = time.Unix(tx.Timestamp, 0)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The dedup gate and downstream effects happen under one lock so a
	// signature is never emitted twice across concurrent sources.
	if !p.window.Admit(tx.ID()) {
		p.stats.Duplicates++
		observability.RecordDuplicate()
		return 0
	}

	emitted := 0
	for _, buy := range buys {
		event := domain.BuyEvent{
			Wallet:      buy.Wallet,
			SolSpent:    buy.SolSpent,
			TokenAmount: buy.TokenAmount,
			Signature:   tx.ID(),
			Timestamp:   timestamp,
			Source:      source,
		}

		if err := p.store.Insert(event); err != nil {
			p.logger.Printf("[ingestion] store insert failed for %s: %v", event.Signature, err)
			p.stats.Errors++
			observability.RecordProcessingError("store")
			continue
		}
		p.broadcaster.Publish(event)

		p.stats.BuysDetected++
		observability.RecordBuy(source.String(), buy.SolSpent)
		p.logger.Printf("[ingestion] buy detected: wallet=%s spent=%.9f SOL amount=%f sig=%s source=%s",
			event.Wallet, event.SolSpent, event.TokenAmount, event.Signature, source)
		emitted++
	}

	observability.RecordProcessingLatency(time.Since(start).Seconds())
	return emitted
}

// RecordEnrichmentDrop counts a notification abandoned after its detail
// fetch failed.
func (p *Pipeline) RecordEnrichmentDrop() {
	p.mu.Lock()
	p.stats.EnrichmentDrops++
	p.mu.Unlock()
	observability.RecordEnrichmentDrop()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) skip(reason string) {
	p.mu.Lock()
	p.stats.Skipped++
	p.mu.Unlock()
	observability.RecordSkipped(reason)
}
