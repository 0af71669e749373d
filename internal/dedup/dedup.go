// Package dedup collapses usage entries that appear in more than one file.
//
// The source tool rewrites and resumes session logs, so the same
// request/response pair is often present in several files. An Index records
// the keys already admitted during one loading phase. Each phase owns its
// own Index; it is never shared between phases.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"iter"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sdpower/ccdash/internal/types"
)

// Key derives the identity used for deduplication. The native
// message/request pair wins, then the message id alone, then a fingerprint
// of the entry's content.
func Key(messageID, requestID string, e types.UsageEntry) string {
	switch {
	case messageID != "" && requestID != "":
		return messageID + ":" + requestID
	case messageID != "":
		return messageID
	}
	return Fingerprint(e)
}

// Fingerprint hashes the fields that identify an entry without a native id
func Fingerprint(e types.UsageEntry) string {
	return hashStrings(
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.SessionID,
		e.ModelID,
		strconv.FormatInt(e.Tokens.Input, 10),
		strconv.FormatInt(e.Tokens.Output, 10),
		strconv.FormatInt(e.Tokens.CacheWrite, 10),
		strconv.FormatInt(e.Tokens.CacheRead, 10),
	)
}

func hashStrings(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "fp:" + hex.EncodeToString(sum[:])
}

// Index is the set of keys seen so far. Admit serializes the
// check-and-record step so concurrent workers never both accept one entry.
type Index struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	duplicates int
}

func New() *Index {
	return &Index{seen: make(map[string]struct{})}
}

// Admit reports whether key is new, recording it if so
func (x *Index) Admit(key string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.seen[key]; ok {
		x.duplicates++
		return false
	}
	x.seen[key] = struct{}{}
	return true
}

// Filter yields only the entries whose key has not been admitted before.
// Entries without a key are fingerprinted.
func (x *Index) Filter(seq iter.Seq[types.UsageEntry]) iter.Seq[types.UsageEntry] {
	return func(yield func(types.UsageEntry) bool) {
		for e := range seq {
			key := e.DedupKey
			if key == "" {
				key = Fingerprint(e)
			}
			if !x.Admit(key) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.seen)
}

// Duplicates counts rejected Admit calls
func (x *Index) Duplicates() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.duplicates
}
