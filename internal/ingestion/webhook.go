package ingestion

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"token-buy-monitor/internal/domain"
	"token-buy-monitor/internal/solana"
)

// maxWebhookBody caps webhook payload size at 10 MiB.
const maxWebhookBody = 10 << 20

// WebhookHandler accepts provider webhook deliveries. The provider retries
// non-200 responses, so the handler acknowledges every request and reports
// problems through logs and counters instead of status codes.
type WebhookHandler struct {
	pipeline *Pipeline
	logger   *log.Logger
}

// NewWebhookHandler creates a webhook HTTP handler feeding the pipeline.
func NewWebhookHandler(pipeline *Pipeline, logger *log.Logger) *WebhookHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookHandler{pipeline: pipeline, logger: logger}
}

// ServeHTTP handles one webhook delivery carrying either a single
// transaction object or an array of them.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Printf("[webhook] read body: %v", err)
		h.ack(w, 0)
		return
	}

	records := decodeRecords(body)
	if records == nil {
		h.logger.Printf("[webhook] undecodable payload (%d bytes)", len(body))
		h.ack(w, 0)
		return
	}

	emitted := 0
	for i := range records {
		emitted += h.pipeline.Process(&records[i], domain.SourceWebhook)
	}

	h.ack(w, emitted)
}

// ack always responds 200 so the provider does not redeliver.
func (h *WebhookHandler) ack(w http.ResponseWriter, emitted int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":   true,
		"buys": emitted,
	})
}

// decodeRecords parses a webhook body as an array of transaction records,
// falling back to a single object. Returns nil when neither shape parses.
func decodeRecords(body []byte) []solana.TransactionRecord {
	var records []solana.TransactionRecord
	if err := json.Unmarshal(body, &records); err == nil {
		return records
	}

	var single solana.TransactionRecord
	if err := json.Unmarshal(body, &single); err == nil {
		return []solana.TransactionRecord{single}
	}

	return nil
}
