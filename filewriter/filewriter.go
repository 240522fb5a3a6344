// Package filewriter translates a completed, hash-verified piece into one
// or more file-range writes at the correct byte offset (C9), grounded on
// the grounding source's lib/store local file read/writer: create parent
// directories, open create-if-missing without truncating, and write at a
// specific offset rather than appending.
package filewriter

import (
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivanjermakov/biter/errs"
	"github.com/ivanjermakov/biter/store"
	"github.com/ivanjermakov/biter/torlib"
)

// Writer writes verified piece data into its target files under Root. One
// Writer is shared across every peer session in a run; it holds no mutable
// state of its own beyond its root path and logger, so concurrent calls
// from different pieces need no coordination -- FileLocations for distinct
// pieces never overlap in (file, offset) because the store never reuses a
// piece's blocks once it has reached Saved.
type Writer struct {
	root   string
	logger *zap.SugaredLogger
}

// New constructs a Writer rooted at root (the configured download root).
func New(root string, logger *zap.SugaredLogger) *Writer {
	return &Writer{root: root, logger: logger}
}

// Write writes data (one assembled, hash-verified piece) into every file its
// FileLocations describe, under <root>/<torrentName>/<file path>. Writes
// for a piece's distinct FileLocations run concurrently; any failures are
// combined into one returned error via multierr rather than stopping at the
// first, so a multi-file piece's partial failure is fully reported.
func (w *Writer) Write(torrentName string, files []torlib.FileEntry, data []byte, locations []store.FileLocation) error {
	var g errgroup.Group
	errsCh := make(chan error, len(locations))
	for _, loc := range locations {
		loc := loc
		g.Go(func() error {
			err := w.writeLocation(torrentName, files, data, loc)
			errsCh <- err
			return nil
		})
	}
	_ = g.Wait()
	close(errsCh)

	var combined error
	for err := range errsCh {
		combined = multierr.Append(combined, err)
	}
	return combined
}

func (w *Writer) writeLocation(torrentName string, files []torlib.FileEntry, data []byte, loc store.FileLocation) error {
	if loc.FileIndex < 0 || loc.FileIndex >= len(files) {
		return &errs.IOError{Path: torrentName, Err: os.ErrInvalid}
	}
	path := filepath.Join(w.root, torrentName, files[loc.FileIndex].JoinedPath())

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &errs.IOError{Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &errs.IOError{Path: path, Err: err}
	}
	defer f.Close()

	// Extend (never shrink) the file to its declared length.
	fi, err := f.Stat()
	if err != nil {
		return &errs.IOError{Path: path, Err: err}
	}
	if fi.Size() < files[loc.FileIndex].Length {
		if err := f.Truncate(files[loc.FileIndex].Length); err != nil {
			return &errs.IOError{Path: path, Err: err}
		}
	}

	chunk :=data[loc.PieceOffset : loc.PieceOffset+loc.Length]
	if _, err := f.WriteAt(chunk, loc.FileOffset); err != nil {
		return &errs.IOError{Path: path, Err: err}
	}
	if w.logger != nil {
		w.logger.Debugw("wrote file location", "path", path, "offset", loc.FileOffset, "length", loc.Length)
	}
	return nil
}
