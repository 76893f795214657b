package solana

import "context"

// RPCClient defines the provider HTTP interface used for enrichment.
type RPCClient interface {
	// GetTransaction retrieves a raw transaction by signature via JSON-RPC.
	// Returns nil when the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*TransactionRecord, error)

	// GetEnhancedTransactions retrieves enhanced transaction details for the
	// given signatures via the provider REST endpoint.
	GetEnhancedTransactions(ctx context.Context, signatures []string) ([]TransactionRecord, error)
}
