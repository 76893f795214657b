package detection

import (
	"math"

	"token-buy-monitor/internal/solana"
)

// BalanceDeltas maps owner -> mint -> net display-unit change for one
// transaction. Derived per record, never retained.
type BalanceDeltas map[string]map[string]float64

func (d BalanceDeltas) add(owner, mint string, amount float64) {
	if owner == "" || mint == "" || amount == 0 {
		return
	}
	byMint, ok := d[owner]
	if !ok {
		byMint = make(map[string]float64)
		d[owner] = byMint
	}
	byMint[mint] += amount
}

// Netter converts a transaction record into per-owner net balance deltas,
// covering only the tracked mint and the settlement asset (native SOL and
// its wrapped form). The input shape is detected per record: a flat transfer
// list, or paired pre/post balance snapshots.
type Netter struct {
	trackedMint string
}

// NewNetter creates a netter scoped to the given tracked mint.
func NewNetter(trackedMint string) *Netter {
	return &Netter{trackedMint: trackedMint}
}

// relevant filters mints down to the tracked asset and settlement asset.
func (n *Netter) relevant(mint string) bool {
	return mint == n.trackedMint || mint == solana.WSOLMint || mint == solana.NativeSOL
}

// Net computes the per-owner deltas for one transaction. Failed transactions
// and records carrying neither balance representation yield nil; such
// records are skipped whole, never partially classified.
func (n *Netter) Net(tx *solana.TransactionRecord) BalanceDeltas {
	if tx == nil || tx.Failed() {
		return nil
	}

	pre, post := tx.TokenBalanceSnapshots()

	switch {
	case len(tx.TokenTransfers) > 0:
		return n.netTransfers(tx)
	case len(pre) > 0 || len(post) > 0:
		return n.netSnapshots(tx, pre, post)
	default:
		return nil
	}
}

// netTransfers nets a directed transfer list: each transfer of amount a of
// mint m from F to T contributes +a to T and -a to F. Native balance changes
// ride along as settlement-asset deltas.
func (n *Netter) netTransfers(tx *solana.TransactionRecord) BalanceDeltas {
	deltas := make(BalanceDeltas)

	for _, t := range tx.TokenTransfers {
		if !n.relevant(t.Mint) {
			continue
		}
		a := t.TokenAmount
		if a <= 0 || math.IsNaN(a) || math.IsInf(a, 0) {
			continue
		}
		deltas.add(t.ToUserAccount, t.Mint, a)
		deltas.add(t.FromUserAccount, t.Mint, -a)
	}

	n.netNativeChanges(tx, deltas)

	if len(deltas) == 0 {
		return nil
	}
	return deltas
}

// netNativeChanges nets native SOL movement under the native pseudo-mint.
// Per-account balance change records are preferred; directed native
// transfers are used when no such records exist.
func (n *Netter) netNativeChanges(tx *solana.TransactionRecord, deltas BalanceDeltas) {
	if len(tx.AccountData) > 0 {
		for _, a := range tx.AccountData {
			if a.NativeBalanceChange == 0 {
				continue
			}
			deltas.add(a.Account, solana.NativeSOL, float64(a.NativeBalanceChange)/solana.LamportsPerSOL)
		}
		return
	}

	for _, t := range tx.NativeTransfers {
		if t.Amount <= 0 {
			continue
		}
		sol := float64(t.Amount) / solana.LamportsPerSOL
		deltas.add(t.ToUserAccount, solana.NativeSOL, sol)
		deltas.add(t.FromUserAccount, solana.NativeSOL, -sol)
	}
}

// netSnapshots nets pre/post balance snapshots: delta = post - pre per
// (owner, mint); an owner absent from one side counts as zero there.
func (n *Netter) netSnapshots(tx *solana.TransactionRecord, pre, post []solana.TokenBalance) BalanceDeltas {
	deltas := make(BalanceDeltas)

	_, _, keys := tx.LamportBalances()

	type balKey struct {
		owner string
		mint  string
	}
	preAmounts := make(map[balKey]float64, len(pre))
	for _, b := range pre {
		owner := n.balanceOwner(b, keys)
		if owner == "" || !n.relevant(b.Mint) {
			continue
		}
		preAmounts[balKey{owner, b.Mint}] += b.UITokenAmount.Value()
	}

	// An owner can hold one mint across several token accounts (the ATA
	// plus temporary accounts created during swaps), so each side is summed
	// per (owner, mint) before differencing.
	postAmounts := make(map[balKey]float64, len(post))
	for _, b := range post {
		owner := n.balanceOwner(b, keys)
		if owner == "" || !n.relevant(b.Mint) {
			continue
		}
		postAmounts[balKey{owner, b.Mint}] += b.UITokenAmount.Value()
	}

	for k, amount := range postAmounts {
		deltas.add(k.owner, k.mint, amount-preAmounts[k])
	}

	// Owners present only in the pre-set went to zero balance.
	for k, amount := range preAmounts {
		if _, ok := postAmounts[k]; !ok {
			deltas.add(k.owner, k.mint, -amount)
		}
	}

	n.netLamportSnapshots(tx, deltas)

	if len(deltas) == 0 {
		return nil
	}
	return deltas
}

// balanceOwner resolves the owning account of a snapshot entry, falling back
// to the account keys when the owner field is absent.
func (n *Netter) balanceOwner(b solana.TokenBalance, keys []string) string {
	if b.Owner != "" {
		return b.Owner
	}
	if b.AccountIndex >= 0 && b.AccountIndex < len(keys) {
		return keys[b.AccountIndex]
	}
	return ""
}

// netLamportSnapshots nets the native pre/post lamport arrays per account.
func (n *Netter) netLamportSnapshots(tx *solana.TransactionRecord, deltas BalanceDeltas) {
	pre, post, keys := tx.LamportBalances()
	if len(keys) == 0 {
		return
	}

	for i, key := range keys {
		var preBal, postBal uint64
		if i < len(pre) {
			preBal = pre[i]
		}
		if i < len(post) {
			postBal = post[i]
		}
		if preBal == postBal {
			continue
		}
		diff := (float64(postBal) - float64(preBal)) / solana.LamportsPerSOL
		deltas.add(key, solana.NativeSOL, diff)
	}
}
