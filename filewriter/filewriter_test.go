package filewriter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivanjermakov/biter/store"
	"github.com/ivanjermakov/biter/torlib"
)

// A single-file piece lands at the expected offset inside the one target
// file, matching scenario S3 of the piece/file mapping.
func TestWriteSingleFile(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil)

	files := []torlib.FileEntry{{Length: 10, Path: []string{"x"}}}
	data := []byte{8, 9}
	locations := []store.FileLocation{{FileIndex: 0, FileOffset: 8, PieceOffset: 0, Length: 2}}

	require.NoError(t, w.Write("torrent", files, data, locations))

	got, err := os.ReadFile(filepath.Join(root, "torrent", "x"))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 8, 9}, got)
}

// A piece spanning a file boundary writes into both files at their
// respective offsets, matching scenario S4.
func TestWriteSpanningMultipleFiles(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil)

	files := []torlib.FileEntry{
		{Length: 3, Path: []string{"a"}},
		{Length: 7, Path: []string{"b"}},
	}
	data := []byte{1, 2, 3, 4, 5}
	locations := []store.FileLocation{
		{FileIndex: 0, FileOffset: 0, PieceOffset: 0, Length: 3},
		{FileIndex: 1, FileOffset: 0, PieceOffset: 3, Length: 2},
	}

	require.NoError(t, w.Write("torrent", files, data, locations))

	a, err := os.ReadFile(filepath.Join(root, "torrent", "a"))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, a)

	b, err := os.ReadFile(filepath.Join(root, "torrent", "b"))
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5, 0, 0, 0, 0, 0}, b)
}

// Writing a second piece into the same file must not truncate bytes an
// earlier piece already wrote.
func TestWriteDoesNotTruncateExistingContent(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil)
	files := []torlib.FileEntry{{Length: 10, Path: []string{"x"}}}

	require.NoError(t, w.Write("torrent", files, []byte{1, 2}, []store.FileLocation{
		{FileIndex: 0, FileOffset: 0, PieceOffset: 0, Length: 2},
	}))
	require.NoError(t, w.Write("torrent", files, []byte{3, 4}, []store.FileLocation{
		{FileIndex: 0, FileOffset: 2, PieceOffset: 0, Length: 2},
	}))

	got, err := os.ReadFile(filepath.Join(root, "torrent", "x"))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0}, got)
}

// An out-of-range FileIndex is reported as an error rather than panicking.
func TestWriteInvalidFileIndex(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil)
	files := []torlib.FileEntry{{Length: 10, Path: []string{"x"}}}

	err := w.Write("torrent", files, []byte{1}, []store.FileLocation{
		{FileIndex: 5, FileOffset: 0, PieceOffset: 0, Length: 1},
	})
	require.Error(t, err)
}
