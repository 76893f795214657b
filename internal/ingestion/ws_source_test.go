package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-buy-monitor/internal/broadcast"
	"token-buy-monitor/internal/dedup"
	"token-buy-monitor/internal/detection"
	"token-buy-monitor/internal/solana"
	"token-buy-monitor/internal/storage/memory"
)

type mockWSClient struct {
	notifs chan solana.LogNotification
}

func (m *mockWSClient) SubscribeLogs(ctx context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	return m.notifs, nil
}

func (m *mockWSClient) State() solana.ConnState { return solana.StateSubscribed }
func (m *mockWSClient) Close() error            { return nil }

type mockRPCClient struct {
	records     map[string][]solana.TransactionRecord
	rawRecords  map[string]*solana.TransactionRecord
	enhancedErr error
	rawErr      error
}

func (m *mockRPCClient) GetTransaction(ctx context.Context, signature string) (*solana.TransactionRecord, error) {
	if m.rawErr != nil {
		return nil, m.rawErr
	}
	return m.rawRecords[signature], nil
}

func (m *mockRPCClient) GetEnhancedTransactions(ctx context.Context, signatures []string) ([]solana.TransactionRecord, error) {
	if m.enhancedErr != nil {
		return nil, m.enhancedErr
	}
	var out []solana.TransactionRecord
	for _, sig := range signatures {
		out = append(out, m.records[sig]...)
	}
	return out, nil
}

func TestWSSourceEnrichesAndEmits(t *testing.T) {
	store := memory.NewBuyEventStore(100)
	b := broadcast.NewBroadcaster(16, nil)
	pipeline := NewPipeline(PipelineOptions{
		Classifier:  detection.NewClassifier(testMint, 0.001),
		Window:      dedup.NewWindow(1000),
		Store:       store,
		Broadcaster: b,
	})

	ws := &mockWSClient{notifs: make(chan solana.LogNotification, 4)}
	rpc := &mockRPCClient{records: map[string][]solana.TransactionRecord{
		"T1": {*buyRecord("T1")},
	}}

	source := NewWSSource(WSSourceOptions{
		WS:       ws,
		RPC:      rpc,
		Pipeline: pipeline,
		Mint:     testMint,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, events := b.Register()

	done := make(chan error, 1)
	go func() { done <- source.Run(ctx) }()

	ws.notifs <- solana.LogNotification{Signature: "T1", Slot: 100}

	select {
	case ev := <-events:
		assert.Equal(t, "T1", ev.Signature)
		assert.Equal(t, testWallet, ev.Wallet)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for buy event")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop")
	}
}

func TestWSSourceSkipsFailedTransactions(t *testing.T) {
	store := memory.NewBuyEventStore(100)
	pipeline := NewPipeline(PipelineOptions{
		Classifier:  detection.NewClassifier(testMint, 0.001),
		Window:      dedup.NewWindow(1000),
		Store:       store,
		Broadcaster: broadcast.NewBroadcaster(16, nil),
	})

	ws := &mockWSClient{notifs: make(chan solana.LogNotification, 4)}
	rpc := &mockRPCClient{records: map[string][]solana.TransactionRecord{
		"T1": {*buyRecord("T1")},
	}}

	source := NewWSSource(WSSourceOptions{WS: ws, RPC: rpc, Pipeline: pipeline, Mint: testMint})

	ctx, cancel := context.WithCancel(context.Background())
	go source.Run(ctx)

	// Failed-transaction notification must never reach the RPC client.
	ws.notifs <- solana.LogNotification{Signature: "T1", Slot: 100, Err: map[string]interface{}{"InstructionError": nil}}

	time.Sleep(200 * time.Millisecond)
	cancel()

	assert.Empty(t, store.Snapshot(0))
}

func TestWSSourceFallsBackToRawFetch(t *testing.T) {
	store := memory.NewBuyEventStore(100)
	b := broadcast.NewBroadcaster(16, nil)
	pipeline := NewPipeline(PipelineOptions{
		Classifier:  detection.NewClassifier(testMint, 0.001),
		Window:      dedup.NewWindow(1000),
		Store:       store,
		Broadcaster: b,
	})

	// No enhanced endpoint available; the raw transaction carries the
	// balance snapshots needed for classification.
	ws := &mockWSClient{notifs: make(chan solana.LogNotification, 4)}
	rpc := &mockRPCClient{
		enhancedErr: errors.New("enhanced endpoint not configured"),
		rawRecords:  map[string]*solana.TransactionRecord{"T3": buyRecord("T3")},
	}

	source := NewWSSource(WSSourceOptions{WS: ws, RPC: rpc, Pipeline: pipeline, Mint: testMint})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, events := b.Register()

	done := make(chan error, 1)
	go func() { done <- source.Run(ctx) }()

	ws.notifs <- solana.LogNotification{Signature: "T3", Slot: 102}

	select {
	case ev := <-events:
		assert.Equal(t, "T3", ev.Signature)
		assert.Equal(t, testWallet, ev.Wallet)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for buy event")
	}
	assert.Zero(t, pipeline.Stats().EnrichmentDrops)

	cancel()
	<-done
}

func TestWSSourceCountsEnrichmentDrops(t *testing.T) {
	store := memory.NewBuyEventStore(100)
	pipeline := NewPipeline(PipelineOptions{
		Classifier:  detection.NewClassifier(testMint, 0.001),
		Window:      dedup.NewWindow(1000),
		Store:       store,
		Broadcaster: broadcast.NewBroadcaster(16, nil),
	})

	ws := &mockWSClient{notifs: make(chan solana.LogNotification, 4)}
	rpc := &mockRPCClient{
		enhancedErr: errors.New("fetch failed"),
		rawErr:      errors.New("fetch failed"),
	}

	source := NewWSSource(WSSourceOptions{WS: ws, RPC: rpc, Pipeline: pipeline, Mint: testMint})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- source.Run(ctx) }()

	ws.notifs <- solana.LogNotification{Signature: "T2", Slot: 101}

	require.Eventually(t, func() bool {
		return pipeline.Stats().EnrichmentDrops == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Empty(t, store.Snapshot(0))
}
