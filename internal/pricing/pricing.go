package pricing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sdpower/ccdash/internal/types"
)

// Rates are USD per million tokens for each token class
type Rates struct {
	Input      decimal.Decimal `json:"input"`
	Output     decimal.Decimal `json:"output"`
	CacheWrite decimal.Decimal `json:"cache_write"`
	CacheRead  decimal.Decimal `json:"cache_read"`
}

var perMillion = int32(-6)

// Cost prices a token count exactly
func (r Rates) Cost(tc types.TokenCounts) decimal.Decimal {
	sum := r.Input.Mul(decimal.NewFromInt(tc.Input)).
		Add(r.Output.Mul(decimal.NewFromInt(tc.Output))).
		Add(r.CacheWrite.Mul(decimal.NewFromInt(tc.CacheWrite))).
		Add(r.CacheRead.Mul(decimal.NewFromInt(tc.CacheRead)))
	return sum.Shift(perMillion)
}

func (r Rates) IsZero() bool {
	return r.Input.IsZero() && r.Output.IsZero() && r.CacheWrite.IsZero() && r.CacheRead.IsZero()
}

func (r Rates) hasNegative() bool {
	return r.Input.IsNegative() || r.Output.IsNegative() || r.CacheWrite.IsNegative() || r.CacheRead.IsNegative()
}

// Table maps model identifiers to rates. It is immutable once built and
// safe for concurrent use.
type Table struct {
	rates    map[string]Rates
	prefixes []string // canonical keys, longest first
	fallback Rates

	// fallbackSet is false for partial tables read from a file that did
	// not name a fallback
	fallbackSet bool
}

// NewTable builds a table. Keys are matched case-insensitively.
func NewTable(rates map[string]Rates, fallback Rates) *Table {
	t := &Table{
		rates:       make(map[string]Rates, len(rates)),
		fallback:    fallback,
		fallbackSet: true,
	}
	for model, r := range rates {
		t.rates[canonical(model)] = r
	}
	t.prefixes = make([]string, 0, len(t.rates))
	for k := range t.rates {
		t.prefixes = append(t.prefixes, k)
	}
	sort.Slice(t.prefixes, func(i, j int) bool {
		if len(t.prefixes[i]) != len(t.prefixes[j]) {
			return len(t.prefixes[i]) > len(t.prefixes[j])
		}
		return t.prefixes[i] < t.prefixes[j]
	})
	return t
}

// Lookup resolves a model to its rates. Resolution order is exact
// canonical match, then the longest family key that prefixes the model on a
// segment boundary. Unknown models get the fallback rates and ok=false.
func (t *Table) Lookup(model string) (Rates, bool) {
	key := canonical(model)
	if key == "" {
		return t.fallback, false
	}
	if r, ok := t.rates[key]; ok {
		return r, true
	}
	for _, p := range t.prefixes {
		if strings.HasPrefix(key, p+"-") {
			return t.rates[p], true
		}
	}
	return t.fallback, false
}

func (t *Table) Fallback() Rates {
	return t.fallback
}

// Models lists the canonical keys in the table, sorted
func (t *Table) Models() []string {
	out := make([]string, 0, len(t.rates))
	for k := range t.rates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (t *Table) Len() int {
	return len(t.rates)
}

// Merge returns a new table with other's entries laid over t's. The
// fallback comes from other when it sets one.
func (t *Table) Merge(other *Table) *Table {
	rates := make(map[string]Rates, len(t.rates)+len(other.rates))
	for k, r := range t.rates {
		rates[k] = r
	}
	for k, r := range other.rates {
		rates[k] = r
	}
	fallback := t.fallback
	if other.fallbackSet {
		fallback = other.fallback
	}
	return NewTable(rates, fallback)
}

// canonical lowercases a model id, drops any provider prefix
// ("anthropic/", "us.anthropic.") and maps '_' and '.' to '-'.
// Bedrock-style version suffixes (":0") are dropped too.
func canonical(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	if i := strings.Index(m, "anthropic."); i >= 0 {
		m = m[i+len("anthropic."):]
	}
	if i := strings.Index(m, ":"); i >= 0 {
		m = m[:i]
	}
	m = strings.NewReplacer("_", "-", ".", "-").Replace(m)
	return strings.Trim(m, "-")
}
