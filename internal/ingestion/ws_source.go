package ingestion

import (
	"context"
	"log"
	"sync"
	"time"

	"token-buy-monitor/internal/domain"
	"token-buy-monitor/internal/observability"
	"token-buy-monitor/internal/solana"
)

// DefaultEnrichTimeout bounds one notification's detail fetch.
const DefaultEnrichTimeout = 30 * time.Second

// WSSource consumes log notifications for the tracked mint and enriches
// each signature with full transaction detail before handing it to the
// pipeline. Notifications carry only a signature; classification needs the
// balance data that the detail fetch provides.
type WSSource struct {
	ws            solana.WSClient
	rpc           solana.RPCClient
	pipeline      *Pipeline
	mint          string
	commitment    string
	enrichTimeout time.Duration
	logger        *log.Logger

	wg sync.WaitGroup
}

// WSSourceOptions contains configuration for creating a WSSource.
type WSSourceOptions struct {
	WS            solana.WSClient
	RPC           solana.RPCClient
	Pipeline      *Pipeline
	Mint          string
	Commitment    string
	EnrichTimeout time.Duration
	Logger        *log.Logger
}

// NewWSSource creates a subscription-driven ingestion source.
func NewWSSource(opts WSSourceOptions) *WSSource {
	enrichTimeout := opts.EnrichTimeout
	if enrichTimeout == 0 {
		enrichTimeout = DefaultEnrichTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &WSSource{
		ws:            opts.WS,
		rpc:           opts.RPC,
		pipeline:      opts.Pipeline,
		mint:          opts.Mint,
		commitment:    opts.Commitment,
		enrichTimeout: enrichTimeout,
		logger:        logger,
	}
}

// Run subscribes to logs mentioning the tracked mint and processes
// notifications until the channel closes or the context is cancelled.
func (s *WSSource) Run(ctx context.Context) error {
	notifs, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions:   []string{s.mint},
		Commitment: s.commitment,
	})
	if err != nil {
		return err
	}
	s.logger.Printf("[ws-source] subscribed to logs mentioning %s", s.mint)

	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-notifs:
			if !ok {
				s.logger.Println("[ws-source] notification channel closed")
				return nil
			}
			observability.RecordNotification()

			if notif.Err != nil {
				// Failed transactions cannot contain buys.
				observability.RecordSkipped("failed_tx")
				continue
			}
			if notif.Signature == "" {
				continue
			}

			// Each fetch runs independently so a slow RPC response
			// does not stall the notification stream.
			s.wg.Add(1)
			go func(signature string) {
				defer s.wg.Done()
				s.enrichAndProcess(ctx, signature)
			}(notif.Signature)
		}
	}
}

// enrichAndProcess fetches full transaction detail for one signature and
// runs it through the pipeline. Retries live inside the RPC client; when
// the enhanced fetch and the raw fallback are both exhausted the
// notification is dropped and counted.
func (s *WSSource) enrichAndProcess(ctx context.Context, signature string) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.enrichTimeout)
	defer cancel()

	start := time.Now()
	records, err := s.rpc.GetEnhancedTransactions(fetchCtx, []string{signature})
	observability.RecordRPCLatency("getEnhancedTransactions", time.Since(start).Seconds())

	if err != nil {
		s.logger.Printf("[ws-source] enhanced fetch failed for %s: %v", signature, err)
	}
	if len(records) == 0 {
		records = s.fetchRaw(fetchCtx, signature)
	}
	if len(records) == 0 {
		s.logger.Printf("[ws-source] no detail for %s", signature)
		s.pipeline.RecordEnrichmentDrop()
		return
	}

	for i := range records {
		if records[i].Signature == "" {
			records[i].Signature = signature
		}
		s.pipeline.Process(&records[i], domain.SourceSubscription)
	}
}

// fetchRaw retrieves the raw transaction by signature. The snapshot balances
// it carries classify the same as decoded transfers, so the subscription
// path stays usable when no enhanced endpoint is configured.
func (s *WSSource) fetchRaw(ctx context.Context, signature string) []solana.TransactionRecord {
	start := time.Now()
	tx, err := s.rpc.GetTransaction(ctx, signature)
	observability.RecordRPCLatency("getTransaction", time.Since(start).Seconds())

	if err != nil {
		s.logger.Printf("[ws-source] raw fetch failed for %s: %v", signature, err)
		return nil
	}
	if tx == nil {
		return nil
	}
	return []solana.TransactionRecord{*tx}
}

// State reports the underlying connection state for status endpoints.
func (s *WSSource) State() solana.ConnState {
	return s.ws.State()
}
