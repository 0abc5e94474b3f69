package balancer

import "fmt"

// Kind enumerates the closed set of outcomes a credential probe can produce.
type Kind int

const (
	// KindInvalid means the provider rejected the credential.
	KindInvalid Kind = iota
	// KindLeaked means the provider flagged the credential as compromised.
	// Distinct from invalid; it still must not be reused.
	KindLeaked
	// KindFree means the credential works but sits on a free/no-quota plan.
	KindFree
	// KindPaid means the credential works on a paid plan, optionally with a
	// human-readable plan label.
	KindPaid
	// KindBalance means the credential works and carries a precise remaining
	// credit amount, normalized to USD.
	KindBalance
	// KindRateLimited means the probe was inconclusive because the provider
	// throttled us; callers should retry later.
	KindRateLimited
	// KindUnknown means the provider answered in a shape we do not recognize.
	// Never treated as invalid: an unrecognized shape may hide a working key.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindLeaked:
		return "leaked"
	case KindFree:
		return "free"
	case KindPaid:
		return "paid"
	case KindBalance:
		return "balance"
	case KindRateLimited:
		return "rate_limited"
	case KindUnknown:
		return "unknown"
	}
	return "unknown"
}

// Classification is the normalized result of probing a credential against a
// provider. Label carries the provider-exact text for non-numeric kinds
// ("Free Key" vs "Free Tier", "Has Credits", "T2 (Creator)", ...); Amount is
// meaningful only for KindBalance and is always USD.
type Classification struct {
	Kind   Kind
	Label  string
	Amount float64
}

func Invalid() Classification             { return Classification{Kind: KindInvalid} }
func Leaked() Classification              { return Classification{Kind: KindLeaked} }
func Free(label string) Classification    { return Classification{Kind: KindFree, Label: label} }
func Paid(label string) Classification    { return Classification{Kind: KindPaid, Label: label} }
func Balance(usd float64) Classification  { return Classification{Kind: KindBalance, Amount: usd} }
func RateLimited() Classification         { return Classification{Kind: KindRateLimited} }
func Unknown(label string) Classification { return Classification{Kind: KindUnknown, Label: label} }

// Usable reports whether the credential can be handed out to consumers.
func (c Classification) Usable() bool {
	return c.Kind != KindInvalid && c.Kind != KindLeaked
}

// Transient reports whether the outcome is inconclusive and worth retrying.
// A transient result must never overwrite a stored non-transient balance.
func (c Classification) Transient() bool {
	return c.Kind == KindRateLimited
}

// UnsupportedBalance is stored for credentials of providers that have no
// automated strategy.
const UnsupportedBalance = "?"

// Canonical renders the string form persisted by the credential store.
// Numeric balances become "$" + two decimals; everything else stores the
// strategy's text verbatim.
func (c Classification) Canonical() string {
	switch c.Kind {
	case KindBalance:
		return fmt.Sprintf("$%.2f", c.Amount)
	case KindInvalid:
		return "invalid_key"
	case KindLeaked:
		return "leaked_key"
	}
	if c.Label != "" {
		return c.Label
	}
	switch c.Kind {
	case KindFree:
		return "Free Key"
	case KindPaid:
		return "Paid Key"
	case KindRateLimited:
		return "Rate Limited"
	}
	return "Unknown"
}
