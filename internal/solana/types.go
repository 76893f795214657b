package solana

import (
	"encoding/json"
	"math"
	"strconv"
)

// Well-known Solana constants.
const (
	// WSOLMint is the wrapped SOL mint address.
	WSOLMint = "So11111111111111111111111111111111111111112"

	// NativeSOL is the pseudo-mint under which native lamport balance
	// changes are netted. It is not a real mint address.
	NativeSOL = "SOL"

	// LamportsPerSOL converts lamports to SOL display units.
	LamportsPerSOL = 1_000_000_000
)

// TransactionRecord is a provider transaction payload. Providers deliver
// transactions in two shapes: enhanced (flat transfer lists) and raw RPC
// (pre/post balance snapshots, possibly nested under meta). A single record
// carries whichever fields its shape provides; absent fields stay zero.
type TransactionRecord struct {
	Signature        string          `json:"signature,omitempty"`
	Timestamp        int64           `json:"timestamp,omitempty"` // unix seconds
	Slot             int64           `json:"slot,omitempty"`
	FeePayer         string          `json:"feePayer,omitempty"`
	TransactionError json.RawMessage `json:"transactionError,omitempty"`

	// Enhanced shape
	TokenTransfers  []TokenTransfer    `json:"tokenTransfers,omitempty"`
	NativeTransfers []NativeTransfer   `json:"nativeTransfers,omitempty"`
	AccountData     []AccountData      `json:"accountData,omitempty"`
	Events          *TransactionEvents `json:"events,omitempty"`

	// Raw RPC shape, top-level variant
	PreTokenBalances  []TokenBalance `json:"preTokenBalances,omitempty"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances,omitempty"`
	PreBalances       []uint64       `json:"preBalances,omitempty"`
	PostBalances      []uint64       `json:"postBalances,omitempty"`
	AccountKeys       []string       `json:"accountKeys,omitempty"`

	// Raw RPC shape, nested variant (getTransaction response)
	Meta        *TransactionMeta     `json:"meta,omitempty"`
	Transaction *TransactionEnvelope `json:"transaction,omitempty"`
}

// TransactionMeta holds the balance snapshots of a raw RPC transaction.
type TransactionMeta struct {
	Err               json.RawMessage `json:"err,omitempty"`
	PreTokenBalances  []TokenBalance  `json:"preTokenBalances,omitempty"`
	PostTokenBalances []TokenBalance  `json:"postTokenBalances,omitempty"`
	PreBalances       []uint64        `json:"preBalances,omitempty"`
	PostBalances      []uint64        `json:"postBalances,omitempty"`
}

// TransactionEnvelope carries the signed message of a raw RPC transaction.
type TransactionEnvelope struct {
	Signatures []string            `json:"signatures,omitempty"`
	Message    *TransactionMessage `json:"message,omitempty"`
}

// TransactionMessage contains the account keys of a transaction.
type TransactionMessage struct {
	AccountKeys []string `json:"accountKeys,omitempty"`
}

// TokenTransfer is one directed SPL token transfer in display units.
type TokenTransfer struct {
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	Mint            string  `json:"mint"`
	TokenAmount     float64 `json:"tokenAmount"`
}

// NativeTransfer is one directed SOL transfer in lamports.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// AccountData reports a per-account native balance delta in lamports.
type AccountData struct {
	Account             string `json:"account"`
	NativeBalanceChange int64  `json:"nativeBalanceChange"`
}

// TransactionEvents groups provider-parsed event summaries.
type TransactionEvents struct {
	Swap *SwapSummary `json:"swap,omitempty"`
}

// SwapSummary is the provider's reduced swap view: what went in, what came
// out. Used only as a fallback when richer balance data is unavailable.
type SwapSummary struct {
	NativeInput  *NativeIO   `json:"nativeInput,omitempty"`
	NativeOutput *NativeIO   `json:"nativeOutput,omitempty"`
	TokenInputs  []SwapToken `json:"tokenInputs,omitempty"`
	TokenOutputs []SwapToken `json:"tokenOutputs,omitempty"`
}

// NativeIO is a native-SOL leg of a swap summary, amount in lamports.
type NativeIO struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// SwapToken is a token leg of a swap summary.
type SwapToken struct {
	UserAccount    string         `json:"userAccount"`
	Mint           string         `json:"mint"`
	RawTokenAmount RawTokenAmount `json:"rawTokenAmount"`
}

// RawTokenAmount is a base-unit amount with its decimal scale.
type RawTokenAmount struct {
	TokenAmount string `json:"tokenAmount"`
	Decimals    int    `json:"decimals"`
}

// Value converts the raw base-unit amount to display units.
// Returns 0 for unparseable or non-finite amounts.
func (r RawTokenAmount) Value() float64 {
	raw, err := strconv.ParseFloat(r.TokenAmount, 64)
	if err != nil || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	if r.Decimals > 0 {
		raw /= math.Pow(10, float64(r.Decimals))
	}
	return raw
}

// TokenBalance is one (account, mint) balance entry of a snapshot.
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex,omitempty"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner,omitempty"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// UITokenAmount is the provider's decimal representation of a token amount.
type UITokenAmount struct {
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString,omitempty"`
	Amount         string   `json:"amount,omitempty"`
	Decimals       int      `json:"decimals,omitempty"`
}

// Value returns the display-unit amount, preferring the decimal string over
// the numeric field. Non-finite results are treated as zero.
func (u UITokenAmount) Value() float64 {
	if u.UIAmountString != "" {
		if v, err := strconv.ParseFloat(u.UIAmountString, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	if u.UIAmount != nil {
		v := *u.UIAmount
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return 0
}

// Failed reports whether the provider marked the transaction as errored.
func (t *TransactionRecord) Failed() bool {
	if isJSONError(t.TransactionError) {
		return true
	}
	if t.Meta != nil && isJSONError(t.Meta.Err) {
		return true
	}
	return false
}

// isJSONError treats any non-empty, non-null JSON value as an error marker.
func isJSONError(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// ID returns the transaction signature, falling back to the raw envelope
// when the top-level field is absent.
func (t *TransactionRecord) ID() string {
	if t.Signature != "" {
		return t.Signature
	}
	if t.Transaction != nil && len(t.Transaction.Signatures) > 0 {
		return t.Transaction.Signatures[0]
	}
	return ""
}

// TokenBalanceSnapshots returns the pre/post token balance sets from either
// nesting variant.
func (t *TransactionRecord) TokenBalanceSnapshots() (pre, post []TokenBalance) {
	pre, post = t.PreTokenBalances, t.PostTokenBalances
	if len(pre) == 0 && len(post) == 0 && t.Meta != nil {
		pre, post = t.Meta.PreTokenBalances, t.Meta.PostTokenBalances
	}
	return pre, post
}

// LamportBalances returns the pre/post native balance arrays and the account
// keys they index into, from either nesting variant.
func (t *TransactionRecord) LamportBalances() (pre, post []uint64, keys []string) {
	pre, post = t.PreBalances, t.PostBalances
	if len(pre) == 0 && len(post) == 0 && t.Meta != nil {
		pre, post = t.Meta.PreBalances, t.Meta.PostBalances
	}
	keys = t.AccountKeys
	if len(keys) == 0 && t.Transaction != nil && t.Transaction.Message != nil {
		keys = t.Transaction.Message.AccountKeys
	}
	return pre, post, keys
}
