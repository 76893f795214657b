package ingestion

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-buy-monitor/internal/broadcast"
	"token-buy-monitor/internal/dedup"
	"token-buy-monitor/internal/detection"
	"token-buy-monitor/internal/domain"
	"token-buy-monitor/internal/solana"
	"token-buy-monitor/internal/storage/memory"
)

const (
	testMint   = "MintTracked111111111111111111111111111111111"
	testWallet = "WalletW111111111111111111111111111111111111"
)

type pipelineFixture struct {
	pipeline *Pipeline
	store    *memory.BuyEventStore
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	store := memory.NewBuyEventStore(100)
	p := NewPipeline(PipelineOptions{
		Classifier:  detection.NewClassifier(testMint, 0.001),
		Window:      dedup.NewWindow(1000),
		Store:       store,
		Broadcaster: broadcast.NewBroadcaster(16, log.Default()),
	})
	return &pipelineFixture{pipeline: p, store: store}
}

func buyRecord(sig string) *solana.TransactionRecord {
	pre2, post05 := 2.0, 0.5
	pre0, post10 := 0.0, 10.0
	return &solana.TransactionRecord{
		Signature: sig,
		PreTokenBalances: []solana.TokenBalance{
			{Owner: testWallet, Mint: testMint, UITokenAmount: solana.UITokenAmount{UIAmount: &pre0}},
			{Owner: testWallet, Mint: solana.WSOLMint, UITokenAmount: solana.UITokenAmount{UIAmount: &pre2}},
		},
		PostTokenBalances: []solana.TokenBalance{
			{Owner: testWallet, Mint: testMint, UITokenAmount: solana.UITokenAmount{UIAmount: &post10}},
			{Owner: testWallet, Mint: solana.WSOLMint, UITokenAmount: solana.UITokenAmount{UIAmount: &post05}},
		},
	}
}

func TestPipelineEmitsBuyOnce(t *testing.T) {
	fx := newPipelineFixture(t)

	emitted := fx.pipeline.Process(buyRecord("S1"), domain.SourceWebhook)
	assert.Equal(t, 1, emitted)

	events := fx.store.Snapshot(0)
	require.Len(t, events, 1)
	assert.Equal(t, testWallet, events[0].Wallet)
	assert.InDelta(t, 1.5, events[0].SolSpent, 1e-9)
	assert.InDelta(t, 10.0, events[0].TokenAmount, 1e-9)
	assert.Equal(t, "S1", events[0].Signature)
	assert.Equal(t, domain.SourceWebhook, events[0].Source)
}

func TestPipelineSuppressesCrossSourceDuplicate(t *testing.T) {
	fx := newPipelineFixture(t)

	assert.Equal(t, 1, fx.pipeline.Process(buyRecord("S1"), domain.SourceWebhook))
	assert.Equal(t, 0, fx.pipeline.Process(buyRecord("S1"), domain.SourceSubscription))

	assert.Len(t, fx.store.Snapshot(0), 1)

	stats := fx.pipeline.Stats()
	assert.Equal(t, uint64(2), stats.Received)
	assert.Equal(t, uint64(1), stats.Duplicates)
	assert.Equal(t, uint64(1), stats.BuysDetected)
}

func TestPipelineSkipsNonBuys(t *testing.T) {
	fx := newPipelineFixture(t)

	assert.Equal(t, 0, fx.pipeline.Process(nil, domain.SourceWebhook))
	assert.Equal(t, 0, fx.pipeline.Process(&solana.TransactionRecord{Signature: "S2"}, domain.SourceWebhook))

	stats := fx.pipeline.Stats()
	assert.Equal(t, uint64(2), stats.Skipped)
	assert.Equal(t, uint64(0), stats.BuysDetected)
}

func TestWebhookHandlerBatch(t *testing.T) {
	fx := newPipelineFixture(t)
	handler := NewWebhookHandler(fx.pipeline, nil)

	body := `[{
		"signature": "S1",
		"preTokenBalances": [
			{"owner": "` + testWallet + `", "mint": "` + testMint + `", "uiTokenAmount": {"uiAmount": 0}},
			{"owner": "` + testWallet + `", "mint": "` + solana.WSOLMint + `", "uiTokenAmount": {"uiAmount": 2}}
		],
		"postTokenBalances": [
			{"owner": "` + testWallet + `", "mint": "` + testMint + `", "uiTokenAmount": {"uiAmount": 10}},
			{"owner": "` + testWallet + `", "mint": "` + solana.WSOLMint + `", "uiTokenAmount": {"uiAmount": 0.5}}
		]
	}]`

	post := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post()
	assert.Equal(t, http.StatusOK, rec.Code)

	events := fx.store.Snapshot(0)
	require.Len(t, events, 1)
	assert.Equal(t, testWallet, events[0].Wallet)
	assert.InDelta(t, 1.5, events[0].SolSpent, 1e-9)
	assert.InDelta(t, 10.0, events[0].TokenAmount, 1e-9)
	assert.Equal(t, "S1", events[0].Signature)

	// Redelivery of the same batch emits nothing new.
	rec = post()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fx.store.Snapshot(0), 1)
}

func TestWebhookHandlerSingleObject(t *testing.T) {
	fx := newPipelineFixture(t)
	handler := NewWebhookHandler(fx.pipeline, nil)

	body := `{"signature": "S9", "tokenTransfers": [
		{"fromUserAccount": "Pool111", "toUserAccount": "` + testWallet + `", "mint": "` + testMint + `", "tokenAmount": 4},
		{"fromUserAccount": "` + testWallet + `", "toUserAccount": "Pool111", "mint": "` + solana.WSOLMint + `", "tokenAmount": 0.25}
	]}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fx.store.Snapshot(0), 1)
}

func TestWebhookHandlerMalformedStillAcks(t *testing.T) {
	fx := newPipelineFixture(t)
	handler := NewWebhookHandler(fx.pipeline, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString("not json"))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fx.store.Snapshot(0))
}

func TestWebhookHandlerRejectsGet(t *testing.T) {
	fx := newPipelineFixture(t)
	handler := NewWebhookHandler(fx.pipeline, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
