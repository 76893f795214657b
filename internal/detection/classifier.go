package detection

import (
	"sort"

	"token-buy-monitor/internal/solana"
)

// Buy is one detected purchase of the tracked token by a single wallet.
type Buy struct {
	Wallet      string
	SolSpent    float64
	TokenAmount float64
}

// Classifier decides which wallets bought the tracked token in a
// transaction. A wallet qualifies when its tracked-token balance increased
// while its settlement balance decreased by at least the minimum spend.
// Wallets whose tracked balance decreased are sellers and never reported.
type Classifier struct {
	trackedMint           string
	minSpend              float64
	netter                *Netter
	excluded              map[string]struct{}
	excludeProgramDerived bool
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithExcludedAccounts suppresses buys attributed to the given addresses.
// Used for pool vaults and program accounts that hold token balances but
// are not buyers.
func WithExcludedAccounts(addrs []string) ClassifierOption {
	return func(c *Classifier) {
		for _, a := range addrs {
			if a != "" {
				c.excluded[a] = struct{}{}
			}
		}
	}
}

// WithProgramDerivedFilter additionally suppresses buys attributed to
// program-derived addresses, which cannot be user wallets.
func WithProgramDerivedFilter(enabled bool) ClassifierOption {
	return func(c *Classifier) {
		c.excludeProgramDerived = enabled
	}
}

// NewClassifier creates a classifier for the given tracked mint and minimum
// settlement spend (in SOL).
func NewClassifier(trackedMint string, minSpend float64, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		trackedMint: trackedMint,
		minSpend:    minSpend,
		netter:      NewNetter(trackedMint),
		excluded:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClassifyRecord nets the transaction and classifies the result. When the
// record carries no balance data but does carry a provider swap summary,
// the summary is used as a degraded fallback.
func (c *Classifier) ClassifyRecord(tx *solana.TransactionRecord) []Buy {
	if tx == nil || tx.Failed() {
		return nil
	}

	deltas := c.netter.Net(tx)
	if len(deltas) > 0 {
		return c.Classify(deltas)
	}

	return c.classifySwapSummary(tx)
}

// Classify applies the buy rule to netted deltas. Every qualifying wallet
// in the transaction is reported, ordered by wallet address.
func (c *Classifier) Classify(deltas BalanceDeltas) []Buy {
	var buys []Buy

	for owner, byMint := range deltas {
		if c.excludedWallet(owner) {
			continue
		}

		tracked := byMint[c.trackedMint]
		if tracked <= 0 {
			continue
		}

		// Native settlement wins over wrapped when both moved.
		settle := byMint[solana.NativeSOL]
		if settle == 0 {
			settle = byMint[solana.WSOLMint]
		}
		if settle >= 0 {
			continue
		}

		spent := -settle
		if spent < c.minSpend {
			continue
		}

		buys = append(buys, Buy{
			Wallet:      owner,
			SolSpent:    spent,
			TokenAmount: tracked,
		})
	}

	sort.Slice(buys, func(i, j int) bool {
		return buys[i].Wallet < buys[j].Wallet
	})
	return buys
}

// classifySwapSummary extracts at most one buy from the provider's reduced
// swap view: a token output in the tracked mint paired with a native input.
func (c *Classifier) classifySwapSummary(tx *solana.TransactionRecord) []Buy {
	if tx.Events == nil || tx.Events.Swap == nil {
		return nil
	}
	swap := tx.Events.Swap

	var out *solana.SwapToken
	for i := range swap.TokenOutputs {
		if swap.TokenOutputs[i].Mint == c.trackedMint {
			out = &swap.TokenOutputs[i]
			break
		}
	}
	if out == nil {
		return nil
	}

	if swap.NativeInput == nil || swap.NativeInput.Amount <= 0 {
		return nil
	}
	spent := float64(swap.NativeInput.Amount) / solana.LamportsPerSOL
	if spent < c.minSpend {
		return nil
	}

	wallet := swap.NativeInput.Account
	if wallet == "" {
		wallet = out.UserAccount
	}
	if wallet == "" {
		wallet = tx.FeePayer
	}
	if wallet == "" || c.excludedWallet(wallet) {
		return nil
	}

	return []Buy{{
		Wallet:      wallet,
		SolSpent:    spent,
		TokenAmount: out.RawTokenAmount.Value(),
	}}
}

// excludedWallet reports whether buys by this address must be suppressed.
func (c *Classifier) excludedWallet(addr string) bool {
	if _, ok := c.excluded[addr]; ok {
		return true
	}
	if c.excludeProgramDerived && !solana.IsOnCurve(addr) {
		return true
	}
	return false
}
