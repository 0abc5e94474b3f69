package balancer

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Key is a stored credential together with its canonical balance string.
type Key struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

// ErrNoSortableBalances is the recoverable "nothing to sort" outcome: either
// no balance belongs to a sortable family, or the stored balances mix more
// than one family and sorting would have to guess.
var ErrNoSortableBalances = errors.New("no keys with balance to sort")

// DedupKeys drops later duplicates by token, keeping the first occurrence in
// existing order. Idempotent.
func DedupKeys(keys []Key) []Key {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, dup := seen[k.Token]; dup {
			continue
		}
		seen[k.Token] = struct{}{}
		out = append(out, k)
	}
	return out
}

// balanceFamily identifies which sortable family a canonical balance string
// belongs to, if any.
type balanceFamily int

const (
	familyNone balanceFamily = iota
	familyDollar
	familyPaid
	familyTier
)

var tierPattern = regexp.MustCompile(`^T(?:ier )?(\d+)`)

func familyOf(balance string) balanceFamily {
	switch {
	case strings.HasPrefix(balance, "$"):
		return familyDollar
	case strings.HasPrefix(balance, "Paid "):
		return familyPaid
	case strings.Contains(balance, "Tier"), tierPattern.MatchString(balance):
		return familyTier
	}
	return familyNone
}

// SortKeys orders keys in place by their balance family and returns the
// sorted slice. Exactly one family may be present among the balances; a mix
// of families (or none at all) reports ErrNoSortableBalances instead of
// guessing which comparator applies.
func SortKeys(keys []Key) ([]Key, error) {
	detected := familyNone
	for _, k := range keys {
		f := familyOf(k.Balance)
		if f == familyNone {
			continue
		}
		if detected != familyNone && detected != f {
			return keys, ErrNoSortableBalances
		}
		detected = f
	}

	switch detected {
	case familyDollar:
		sort.SliceStable(keys, func(i, j int) bool {
			return dollarValue(keys[i].Balance) > dollarValue(keys[j].Balance)
		})
	case familyPaid:
		// Paid entries ahead of everything else; each side keeps its order.
		sort.SliceStable(keys, func(i, j int) bool {
			return strings.HasPrefix(keys[i].Balance, "Paid ") && !strings.HasPrefix(keys[j].Balance, "Paid ")
		})
	case familyTier:
		sort.SliceStable(keys, func(i, j int) bool {
			return tierRank(keys[i].Balance) > tierRank(keys[j].Balance)
		})
	default:
		return keys, ErrNoSortableBalances
	}
	return keys, nil
}

// dollarValue parses the numeric suffix after "$"; unparsable values sort
// as zero.
func dollarValue(balance string) float64 {
	v, err := strconv.ParseFloat(strings.TrimPrefix(balance, "$"), 64)
	if err != nil {
		return 0
	}
	return v
}

// tierRank orders tier labels: "T<n>"/"Tier <n>" rank n, free keys rank 0,
// anything unrecognized ranks below free.
func tierRank(balance string) int {
	if balance == "Free Tier" || balance == "Free Key" {
		return 0
	}
	if m := tierPattern.FindStringSubmatch(balance); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n
		}
	}
	return -1
}
