package loader

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sdpower/ccdash/internal/calculator"
	"github.com/sdpower/ccdash/internal/dedup"
	"github.com/sdpower/ccdash/internal/discovery"
	"github.com/sdpower/ccdash/internal/logging"
	"github.com/sdpower/ccdash/internal/parser"
	"github.com/sdpower/ccdash/internal/types"
)

const (
	DefaultWorkers    = 10
	DefaultRecentDays = 7
)

type Options struct {
	Workers int
	Logger  *slog.Logger
}

// PhaseSpec selects what one run covers. A zero Cutoff means everything.
type PhaseSpec struct {
	Phase  types.Phase
	Cutoff time.Time
}

// FastPhase covers files modified, and entries written, in the last days
func FastPhase(now time.Time, days int) PhaseSpec {
	if days <= 0 {
		days = DefaultRecentDays
	}
	return PhaseSpec{Phase: types.PhaseFast, Cutoff: now.Add(-time.Duration(days) * 24 * time.Hour)}
}

func FullPhase() PhaseSpec {
	return PhaseSpec{Phase: types.PhaseFull}
}

// Dataset is the immutable output of one phase: deduplicated, priced
// entries sorted by timestamp.
type Dataset struct {
	Root     string
	Phase    types.Phase
	Cutoff   time.Time
	Entries  []types.PricedEntry
	Errors   types.ErrorSummary
	Duration time.Duration
}

func (d *Dataset) All() iter.Seq[types.PricedEntry] {
	return func(yield func(types.PricedEntry) bool) {
		if d == nil {
			return
		}
		for _, e := range d.Entries {
			if !yield(e) {
				return
			}
		}
	}
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Entries)
}

type Loader struct {
	calc       *calculator.Calculator
	parser     *parser.Parser
	maxWorkers int
	logger     *slog.Logger
}

func New(calc *calculator.Calculator, opts Options) *Loader {
	if calc == nil {
		calc = calculator.New(nil)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loader{
		calc:       calc,
		parser:     parser.New(),
		maxWorkers: workers,
		logger:     logger,
	}
}

type fileResult struct {
	entries []types.UsageEntry
	summary types.ErrorSummary
}

// Run discovers, parses, deduplicates and prices one phase. Only a
// DiscoveryError or cancellation fails the run; per-file and per-record
// problems are counted in Dataset.Errors.
func (l *Loader) Run(ctx context.Context, root string, spec PhaseSpec) (*Dataset, error) {
	start := time.Now()

	listing, err := discovery.Discover(ctx, root, discovery.Options{})
	if err != nil {
		return nil, err
	}

	files := listing.All()
	if !spec.Cutoff.IsZero() {
		files = listing.ModifiedSince(spec.Cutoff)
	}
	var paths []discovery.File
	for f := range files {
		paths = append(paths, f)
	}

	l.logger.Debug("discovered usage files",
		"phase", spec.Phase, "root", listing.Root, "total", listing.Len(), "selected", len(paths), "skipped", listing.Skipped)

	entries, summary, err := l.parseParallel(ctx, listing.Root, paths, spec.Cutoff)
	if err != nil {
		return nil, err
	}
	summary.FilesSkipped += listing.Skipped

	// a fresh index per run; phases never share one
	idx := dedup.New()
	ds := &Dataset{
		Root:   root,
		Phase:  spec.Phase,
		Cutoff: spec.Cutoff,
	}
	unpriced := map[string]struct{}{}
	for e := range idx.Filter(slices.Values(entries)) {
		p := l.calc.Price(e)
		if p.Unpriced {
			summary.PricingGaps++
			unpriced[p.ModelID] = struct{}{}
		}
		ds.Entries = append(ds.Entries, p)
	}
	summary.Duplicates = idx.Duplicates()
	summary.Entries = len(ds.Entries)
	for m := range unpriced {
		summary.UnpricedModels = append(summary.UnpricedModels, m)
	}
	sort.Strings(summary.UnpricedModels)

	ds.Errors = summary
	ds.Duration = time.Since(start)

	l.logger.Debug("phase complete",
		"phase", spec.Phase,
		"entries", summary.Entries,
		"files", summary.FilesScanned,
		"files_skipped", summary.FilesSkipped,
		"parse_errors", summary.ParseErrors,
		"duplicates", summary.Duplicates,
		"filtered", summary.Filtered,
		"pricing_gaps", summary.PricingGaps,
		"duration", ds.Duration)
	for _, m := range summary.UnpricedModels {
		l.logger.Warn("pricing gap", "phase", spec.Phase, "error", types.PricingGapWarning{Model: m})
	}

	return ds, nil
}

// parseParallel parses files on a bounded worker pool. Entries come back
// sorted by (timestamp, path, line) so that deduplication keeps the same
// copy whatever order the workers finished in.
func (l *Loader) parseParallel(ctx context.Context, root string, files []discovery.File, cutoff time.Time) ([]types.UsageEntry, types.ErrorSummary, error) {
	var summary types.ErrorSummary
	if len(files) == 0 {
		return nil, summary, ctx.Err()
	}

	jobs := make(chan discovery.File, len(files))
	results := make(chan fileResult, len(files))

	var wg sync.WaitGroup
	workers := l.maxWorkers
	if workers > len(files) {
		workers = len(files)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
					results <- l.parseFile(root, f, cutoff)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, f := range files {
			select {
			case <-ctx.Done():
				return
			case jobs <- f:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []types.UsageEntry
	for res := range results {
		all = append(all, res.entries...)
		summary.Merge(res.summary)
	}
	if err := ctx.Err(); err != nil {
		return nil, summary, err
	}

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.SourcePath != b.SourcePath {
			return a.SourcePath < b.SourcePath
		}
		return a.Line < b.Line
	})
	return all, summary, nil
}

func (l *Loader) parseFile(root string, f discovery.File, cutoff time.Time) fileResult {
	var res fileResult
	res.summary.FilesScanned = 1

	var firstErr error
	parseErrors := 0
	for e, err := range l.parser.ParseFile(parser.SourceFor(root, f.Path)) {
		if err != nil {
			var fe types.FileReadError
			if errors.As(err, &fe) {
				res.summary.FilesSkipped++
				l.logger.Debug("skipping unreadable file", "path", f.Path, "error", err)
				continue
			}
			parseErrors++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
			continue
		}
		if e.Tokens.IsZero() {
			res.summary.Filtered++
			continue
		}
		res.entries = append(res.entries, e)
	}

	res.summary.ParseErrors = parseErrors
	if parseErrors > 0 {
		l.logger.Debug("file had parse errors", "file", filepath.Base(f.Path), "count", parseErrors, "first", firstErr)
	}
	return res
}
