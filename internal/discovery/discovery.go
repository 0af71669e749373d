package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sdpower/ccdash/internal/types"
)

const (
	projectsDirName = "projects"
	dataExtension   = ".jsonl"
)

// File is one candidate data file
type File struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Listing is the result of one walk. Files are ordered newest first.
type Listing struct {
	Root    string
	Files   []File
	Skipped int
}

type Options struct {
	// SkipProjectsDir disables resolving <root>/projects
	SkipProjectsDir bool
}

// Discover walks root for usage log files. It fails with a DiscoveryError
// when root cannot be walked at all; entries that vanish or cannot be
// stat'ed mid-walk are skipped and counted.
func Discover(ctx context.Context, root string, opts Options) (*Listing, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, types.DiscoveryError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, types.DiscoveryError{Root: root, Err: fmt.Errorf("not a directory")}
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, types.DiscoveryError{Root: root, Err: err}
	}

	base := root
	if !opts.SkipProjectsDir {
		projectsPath := filepath.Join(root, projectsDirName)
		if st, err := os.Stat(projectsPath); err == nil && st.IsDir() {
			base = projectsPath
		}
	}

	listing := &Listing{Root: base}
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == base {
				return err
			}
			listing.Skipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), dataExtension) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			listing.Skipped++
			return nil
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		listing.Files = append(listing.Files, File{Path: path, Size: fi.Size(), ModTime: fi.ModTime()})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.DiscoveryError{Root: root, Err: err}
	}

	sort.Slice(listing.Files, func(i, j int) bool {
		a, b := listing.Files[i], listing.Files[j]
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.After(b.ModTime)
		}
		return a.Path < b.Path
	})

	return listing, nil
}

// All yields every file, newest first. Each call starts over.
func (l *Listing) All() iter.Seq[File] {
	return func(yield func(File) bool) {
		for _, f := range l.Files {
			if !yield(f) {
				return
			}
		}
	}
}

// ModifiedSince yields files modified at or after t. Files are sorted
// newest first, so the sequence stops at the first older one.
func (l *Listing) ModifiedSince(t time.Time) iter.Seq[File] {
	return func(yield func(File) bool) {
		for _, f := range l.Files {
			if f.ModTime.Before(t) {
				return
			}
			if !yield(f) {
				return
			}
		}
	}
}

func (l *Listing) Len() int {
	return len(l.Files)
}
