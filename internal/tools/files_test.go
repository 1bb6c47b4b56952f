// ABOUTME: Tests for the sandboxed file tools against a temp directory.
// ABOUTME: Covers path escapes, size limits, extension rules, and encoding fallbacks.

package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileTools(t *testing.T, cfg FileConfig) (*FileTools, string) {
	t.Helper()
	base := t.TempDir()
	cfg.BaseDir = base
	ft, err := NewFileTools(cfg, testLogger())
	require.NoError(t, err)
	return ft, base
}

func TestReadFile(t *testing.T) {
	ft, base := newTestFileTools(t, FileConfig{MaxFileSize: 1024})
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(base, "hello.txt"), []byte("hello world"), 0o644))

	t.Run("relative path", func(t *testing.T) {
		out, err := ft.ReadFile(ctx, map[string]any{"file_path": "hello.txt"})
		require.NoError(t, err)
		res := out.(map[string]any)
		assert.Equal(t, "hello world", res["content"])
		assert.Equal(t, int64(11), res["size"])
		assert.NotContains(t, res, "encoding")
	})

	t.Run("absolute path inside sandbox", func(t *testing.T) {
		out, err := ft.ReadFile(ctx, map[string]any{"file_path": filepath.Join(base, "hello.txt")})
		require.NoError(t, err)
		assert.Equal(t, "hello world", out.(map[string]any)["content"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ft.ReadFile(ctx, map[string]any{"file_path": "nope.txt"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("directory not file", func(t *testing.T) {
		require.NoError(t, os.Mkdir(filepath.Join(base, "sub"), 0o755))
		_, err := ft.ReadFile(ctx, map[string]any{"file_path": "sub"})
		assert.ErrorIs(t, err, ErrWrongType)
	})

	t.Run("escape via dotdot", func(t *testing.T) {
		_, err := ft.ReadFile(ctx, map[string]any{"file_path": "../outside.txt"})
		assert.ErrorIs(t, err, ErrSandboxViolation)
	})

	t.Run("escape via absolute path", func(t *testing.T) {
		_, err := ft.ReadFile(ctx, map[string]any{"file_path": "/etc/passwd"})
		assert.ErrorIs(t, err, ErrSandboxViolation)
	})

	t.Run("oversize", func(t *testing.T) {
		big := make([]byte, 2048)
		require.NoError(t, os.WriteFile(filepath.Join(base, "big.txt"), big, 0o644))
		_, err := ft.ReadFile(ctx, map[string]any{"file_path": "big.txt"})
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.Contains(t, err.Error(), "2048 bytes")
	})

	t.Run("missing argument", func(t *testing.T) {
		_, err := ft.ReadFile(ctx, map[string]any{})
		assert.ErrorIs(t, err, ErrMissingArgument)
	})
}

func TestReadFileEncodingFallback(t *testing.T) {
	ft, base := newTestFileTools(t, FileConfig{MaxFileSize: 1024})
	ctx := context.Background()

	// "中文" in GBK: D6 D0 CE C4. Not valid UTF-8.
	gbk := []byte{0xD6, 0xD0, 0xCE, 0xC4}
	require.NoError(t, os.WriteFile(filepath.Join(base, "gbk.txt"), gbk, 0o644))

	out, err := ft.ReadFile(ctx, map[string]any{"file_path": "gbk.txt"})
	require.NoError(t, err)
	res := out.(map[string]any)
	assert.Equal(t, "中文", res["content"])
	assert.Equal(t, "gbk", res["encoding"])
}

func TestWriteFile(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		ft, base := newTestFileTools(t, FileConfig{})
		out, err := ft.WriteFile(ctx, map[string]any{"file_path": "out.txt", "content": "data"})
		require.NoError(t, err)
		assert.Equal(t, 4, out.(map[string]any)["bytes_written"])

		b, err := os.ReadFile(filepath.Join(base, "out.txt"))
		require.NoError(t, err)
		assert.Equal(t, "data", string(b))
	})

	t.Run("empty content is valid", func(t *testing.T) {
		ft, base := newTestFileTools(t, FileConfig{})
		_, err := ft.WriteFile(ctx, map[string]any{"file_path": "empty.txt", "content": ""})
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(base, "empty.txt"))
		assert.NoError(t, err)
	})

	t.Run("extension allow-list", func(t *testing.T) {
		ft, _ := newTestFileTools(t, FileConfig{AllowedExtensions: []string{".txt", ".md"}})
		_, err := ft.WriteFile(ctx, map[string]any{"file_path": "script.sh", "content": "x"})
		assert.ErrorIs(t, err, ErrSandboxViolation)

		_, err = ft.WriteFile(ctx, map[string]any{"file_path": "note.MD", "content": "x"})
		assert.NoError(t, err)
	})

	t.Run("missing parent without create_directories", func(t *testing.T) {
		ft, _ := newTestFileTools(t, FileConfig{})
		_, err := ft.WriteFile(ctx, map[string]any{"file_path": "sub/dir/out.txt", "content": "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing parent with create_directories", func(t *testing.T) {
		ft, base := newTestFileTools(t, FileConfig{CreateDirectories: true})
		_, err := ft.WriteFile(ctx, map[string]any{"file_path": "sub/dir/out.txt", "content": "x"})
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(base, "sub", "dir", "out.txt"))
		assert.NoError(t, err)
	})

	t.Run("escape blocked before extension check", func(t *testing.T) {
		ft, _ := newTestFileTools(t, FileConfig{AllowedExtensions: []string{".txt"}})
		_, err := ft.WriteFile(ctx, map[string]any{"file_path": "../evil.txt", "content": "x"})
		assert.ErrorIs(t, err, ErrSandboxViolation)
	})
}

func TestAppendFile(t *testing.T) {
	ft, base := newTestFileTools(t, FileConfig{})
	ctx := context.Background()

	_, err := ft.AppendFile(ctx, map[string]any{"file_path": "log.txt", "content": "one\n"})
	require.NoError(t, err)
	_, err = ft.AppendFile(ctx, map[string]any{"file_path": "log.txt", "content": "two\n"})
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(base, "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(b))
}

func TestListFiles(t *testing.T) {
	ft, base := newTestFileTools(t, FileConfig{})
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("aaa"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(base, "sub"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(base, "empty"), 0o755))

	t.Run("mixed entries", func(t *testing.T) {
		out, err := ft.ListFiles(ctx, map[string]any{"directory_path": "."})
		require.NoError(t, err)
		listing := out.(*Listing)
		assert.Equal(t, 1, listing.TotalFiles)
		assert.Equal(t, 2, listing.TotalDirs)
		assert.False(t, listing.Empty)

		byName := map[string]ListEntry{}
		for _, e := range listing.Entries {
			byName[e.Name] = e
		}
		assert.Equal(t, "file", byName["a.txt"].Type)
		assert.Equal(t, int64(3), byName["a.txt"].Size)
		assert.Equal(t, "directory", byName["sub"].Type)
	})

	t.Run("empty directory", func(t *testing.T) {
		out, err := ft.ListFiles(ctx, map[string]any{"directory_path": "empty"})
		require.NoError(t, err)
		listing := out.(*Listing)
		assert.True(t, listing.Empty)
		assert.Empty(t, listing.Entries)
	})

	t.Run("file not directory", func(t *testing.T) {
		_, err := ft.ListFiles(ctx, map[string]any{"directory_path": "a.txt"})
		assert.ErrorIs(t, err, ErrWrongType)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := ft.ListFiles(ctx, map[string]any{"directory_path": "nowhere"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFileToolsViaRegistry(t *testing.T) {
	ft, base := newTestFileTools(t, FileConfig{MaxFileSize: 1024})
	require.NoError(t, os.WriteFile(filepath.Join(base, "r.txt"), []byte("via registry"), 0o644))

	r := NewRegistry(testLogger())
	ft.Register(r)

	assert.Equal(t, []string{"read_file", "write_file", "append_file", "list_files"}, r.Names())

	// The path synonym applies through Invoke.
	res := r.Invoke(context.Background(), "read_file", map[string]any{"path": "r.txt"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "via registry", res.Result.(map[string]any)["content"])

	// Errors become failure results, not transport errors.
	res = r.Invoke(context.Background(), "read_file", map[string]any{"file_path": "../x"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "outside base directory")
}
