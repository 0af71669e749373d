package dedup_test

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/ccdash/internal/dedup"
	"github.com/sdpower/ccdash/internal/types"
)

func sample(i int) types.UsageEntry {
	e := types.UsageEntry{
		Timestamp: time.Date(2025, 6, 1, 0, 0, i, 0, time.UTC),
		SessionID: "s",
		ModelID:   "m",
		Tokens:    types.TokenCounts{Input: int64(i + 1)},
	}
	e.DedupKey = dedup.Key(fmt.Sprintf("msg_%d", i), fmt.Sprintf("req_%d", i), e)
	return e
}

func TestKeyPriority(t *testing.T) {
	e := types.UsageEntry{Timestamp: time.Unix(1700000000, 0), SessionID: "s", ModelID: "m"}

	assert.Equal(t, "msg:req", dedup.Key("msg", "req", e))
	assert.Equal(t, "msg", dedup.Key("msg", "", e))

	fp := dedup.Key("", "req", e)
	assert.Equal(t, dedup.Fingerprint(e), fp)
	assert.Contains(t, fp, "fp:")

	other := e
	other.Tokens.Output = 1
	assert.NotEqual(t, fp, dedup.Fingerprint(other))
}

func TestFingerprintIgnoresLocation(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := types.UsageEntry{Timestamp: ts, SessionID: "s", ModelID: "m"}
	b := a
	b.Timestamp = ts.In(time.FixedZone("X", 3600))
	assert.Equal(t, dedup.Fingerprint(a), dedup.Fingerprint(b))
}

func TestFilterIsIdempotent(t *testing.T) {
	var entries []types.UsageEntry
	for i := 0; i < 50; i++ {
		entries = append(entries, sample(i))
	}
	// overlapping segment written twice
	doubled := append(slices.Clone(entries), entries...)

	once := slices.Collect(dedup.New().Filter(slices.Values(entries)))

	x := dedup.New()
	twice := slices.Collect(x.Filter(slices.Values(doubled)))

	assert.Equal(t, once, twice)
	assert.Equal(t, 50, x.Len())
	assert.Equal(t, 50, x.Duplicates())
}

func TestFilterFingerprintsKeylessEntries(t *testing.T) {
	e := sample(1)
	e.DedupKey = ""

	got := slices.Collect(dedup.New().Filter(slices.Values([]types.UsageEntry{e, e})))
	require.Len(t, got, 1)
}

func TestFilterStopsEarly(t *testing.T) {
	x := dedup.New()
	n := 0
	for range x.Filter(slices.Values([]types.UsageEntry{sample(1), sample(2), sample(3)})) {
		n++
		break
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, x.Len())
}

func TestAdmitConcurrent(t *testing.T) {
	x := dedup.New()
	var admitted atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if x.Admit(fmt.Sprintf("k%d", i)) {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(500), admitted.Load())
	assert.Equal(t, 500, x.Len())
	assert.Equal(t, 15*500, x.Duplicates())
}
