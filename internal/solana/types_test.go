package solana

import (
	"encoding/json"
	"testing"
)

func TestUITokenAmountValue(t *testing.T) {
	ui := 1.5
	cases := []struct {
		name string
		in   UITokenAmount
		want float64
	}{
		{"numeric only", UITokenAmount{UIAmount: &ui}, 1.5},
		{"string preferred", UITokenAmount{UIAmount: &ui, UIAmountString: "2.25"}, 2.25},
		{"string unparseable falls back", UITokenAmount{UIAmount: &ui, UIAmountString: "bogus"}, 1.5},
		{"nothing set", UITokenAmount{}, 0},
	}

	for _, tc := range cases {
		if got := tc.in.Value(); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRawTokenAmountValue(t *testing.T) {
	r := RawTokenAmount{TokenAmount: "12000000", Decimals: 6}
	if got := r.Value(); got != 12.0 {
		t.Errorf("got %v, want 12", got)
	}

	r = RawTokenAmount{TokenAmount: "garbage", Decimals: 6}
	if got := r.Value(); got != 0 {
		t.Errorf("got %v, want 0 for unparseable amount", got)
	}
}

func TestTransactionRecordFailed(t *testing.T) {
	tx := &TransactionRecord{}
	if tx.Failed() {
		t.Error("empty record should not be failed")
	}

	tx.TransactionError = json.RawMessage("null")
	if tx.Failed() {
		t.Error("null error should not be failed")
	}

	tx.TransactionError = json.RawMessage(`{"InstructionError":[0,"Custom"]}`)
	if !tx.Failed() {
		t.Error("non-null transactionError should be failed")
	}

	tx = &TransactionRecord{Meta: &TransactionMeta{Err: json.RawMessage(`"SomeError"`)}}
	if !tx.Failed() {
		t.Error("non-null meta.err should be failed")
	}
}

func TestTransactionRecordSnapshotsFromMeta(t *testing.T) {
	ui := 3.0
	tx := &TransactionRecord{
		Meta: &TransactionMeta{
			PostTokenBalances: []TokenBalance{
				{Mint: "m", Owner: "o", UITokenAmount: UITokenAmount{UIAmount: &ui}},
			},
		},
	}

	pre, post := tx.TokenBalanceSnapshots()
	if len(pre) != 0 || len(post) != 1 {
		t.Fatalf("expected meta snapshots, got pre=%d post=%d", len(pre), len(post))
	}
	if post[0].UITokenAmount.Value() != 3.0 {
		t.Errorf("got %v, want 3", post[0].UITokenAmount.Value())
	}
}
