package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sdpower/ccdash/internal/dedup"
	"github.com/sdpower/ccdash/internal/types"
)

const (
	initialBufferSize = 64 * 1024
	maxLineSize       = 1024 * 1024

	syntheticModel = "<synthetic>"
	unknownProject = "unknown"
)

type usagePayload struct {
	InputTokens       *int64 `json:"input_tokens"`
	OutputTokens      *int64 `json:"output_tokens"`
	CacheCreateTokens int64  `json:"cache_creation_input_tokens"`
	CacheReadTokens   int64  `json:"cache_read_input_tokens"`
}

type messagePayload struct {
	ID    string        `json:"id"`
	Model string        `json:"model"`
	Usage *usagePayload `json:"usage"`
}

type record struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	Cwd       string          `json:"cwd"`
	RequestID string          `json:"requestId"`
	CostUSD   *float64        `json:"costUSD"`
	Message   *messagePayload `json:"message"`
}

// Source describes where a stream of records came from. Project and Session
// are the fallbacks used when a record does not name its own.
type Source struct {
	Path    string
	Project string
	Session string
}

// SourceFor derives the fallback project and session for a file laid out as
// <root>/<project>/<session>.jsonl
func SourceFor(root, path string) Source {
	src := Source{
		Path:    path,
		Session: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}
	if rel, err := filepath.Rel(root, path); err == nil {
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) > 1 && parts[0] != ".." {
			src.Project = parts[0]
		}
	}
	return src
}

// Parser turns JSONL usage logs into entries
type Parser struct {
	maxLineSize int
}

func New() *Parser {
	return &Parser{maxLineSize: maxLineSize}
}

// Parse yields one entry per billable line of r. A malformed line, or one
// longer than the line limit, yields a ParseError for that line and parsing
// moves on to the next one. Lines that carry no usage (user prompts,
// summaries) are skipped silently. A read failure ends the sequence with a
// FileReadError.
func (p *Parser) Parse(r io.Reader, src Source) iter.Seq2[types.UsageEntry, error] {
	return func(yield func(types.UsageEntry, error) bool) {
		reader := bufio.NewReaderSize(r, initialBufferSize)
		buf := make([]byte, 0, initialBufferSize)

		lineNum := 0
		for {
			var tooLong bool
			var readErr error
			buf, tooLong, readErr = readLine(reader, buf[:0], p.maxLineSize)
			if readErr != nil && readErr != io.EOF {
				yield(types.UsageEntry{}, types.FileReadError{Path: src.Path, Err: fmt.Errorf("line %d: %w", lineNum+1, readErr)})
				return
			}
			if readErr == io.EOF && len(buf) == 0 && !tooLong {
				return
			}
			lineNum++

			if tooLong {
				err := fmt.Errorf("%w: line exceeds %d bytes", bufio.ErrTooLong, p.maxLineSize)
				if !yield(types.UsageEntry{}, types.ParseError{Path: src.Path, Line: lineNum, Err: err}) {
					return
				}
			} else if line := bytes.TrimSpace(buf); len(line) > 0 {
				entry, ok, err := parseLine(line, src, lineNum)
				switch {
				case err != nil:
					if !yield(types.UsageEntry{}, types.ParseError{Path: src.Path, Line: lineNum, Err: err}) {
						return
					}
				case ok:
					if !yield(entry, nil) {
						return
					}
				}
			}

			if readErr == io.EOF {
				return
			}
		}
	}
}

// readLine appends the next line of r to buf. A line longer than limit is
// read to its end and discarded, so memory stays bounded; tooLong reports
// it. err is io.EOF for the final line, which may lack a newline.
func readLine(r *bufio.Reader, buf []byte, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(bytes.TrimRight(chunk, "\r\n")) > limit {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return buf, tooLong, err
	}
}

// ParseFile opens src.Path on each iteration, so the sequence can be
// ranged over more than once.
func (p *Parser) ParseFile(src Source) iter.Seq2[types.UsageEntry, error] {
	return func(yield func(types.UsageEntry, error) bool) {
		f, err := os.Open(src.Path)
		if err != nil {
			yield(types.UsageEntry{}, types.FileReadError{Path: src.Path, Err: err})
			return
		}
		defer f.Close()

		for e, err := range p.Parse(f, src) {
			if !yield(e, err) {
				return
			}
		}
	}
}

// parseLine returns ok=false for records that are valid but not billable
func parseLine(line []byte, src Source, lineNum int) (types.UsageEntry, bool, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return types.UsageEntry{}, false, fmt.Errorf("%w: %v", types.ErrInvalidFormat, err)
	}

	if rec.Message == nil || rec.Message.Usage == nil {
		return types.UsageEntry{}, false, nil
	}
	if rec.Message.Model == syntheticModel {
		return types.UsageEntry{}, false, nil
	}

	ts, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		return types.UsageEntry{}, false, err
	}

	model := strings.TrimSpace(rec.Message.Model)
	if model == "" {
		return types.UsageEntry{}, false, fmt.Errorf("%w: message.model", types.ErrMissingField)
	}

	u := rec.Message.Usage
	if u.InputTokens == nil {
		return types.UsageEntry{}, false, fmt.Errorf("%w: message.usage.input_tokens", types.ErrMissingField)
	}
	if u.OutputTokens == nil {
		return types.UsageEntry{}, false, fmt.Errorf("%w: message.usage.output_tokens", types.ErrMissingField)
	}
	tokens := types.TokenCounts{
		Input:      *u.InputTokens,
		Output:     *u.OutputTokens,
		CacheWrite: u.CacheCreateTokens,
		CacheRead:  u.CacheReadTokens,
	}
	if tokens.HasNegative() {
		return types.UsageEntry{}, false, types.ErrNegativeTokens
	}

	entry := types.UsageEntry{
		Timestamp:  ts,
		ProjectID:  firstNonEmpty(rec.Cwd, src.Project, unknownProject),
		SessionID:  firstNonEmpty(rec.SessionID, src.Session),
		ModelID:    model,
		Tokens:     tokens,
		SourcePath: src.Path,
		Line:       lineNum,
	}
	if rec.CostUSD != nil && !math.IsNaN(*rec.CostUSD) && *rec.CostUSD >= 0 {
		cost := decimal.NewFromFloat(*rec.CostUSD)
		entry.RecordedCost = &cost
	}
	entry.DedupKey = dedup.Key(rec.Message.ID, rec.RequestID, entry)

	return entry, true, nil
}

// parseTimestamp accepts RFC 3339 strings or numeric unix time. Numbers
// above 1e12 are taken as milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, fmt.Errorf("%w: timestamp", types.ErrMissingField)
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp: %v", types.ErrInvalidFormat, err)
		}
		if s == "" {
			return time.Time{}, fmt.Errorf("%w: timestamp", types.ErrMissingField)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q", types.ErrInvalidFormat, s)
		}
		return t.UTC(), nil
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("%w: timestamp %s", types.ErrInvalidFormat, raw)
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
