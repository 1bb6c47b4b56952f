// ABOUTME: Built-in file tools (read, write, append, list) operating inside a sandbox.
// ABOUTME: Every path must resolve under the configured base directory.

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// FileConfig holds the sandboxing rules for the file tools.
type FileConfig struct {
	// BaseDir is the directory all paths must resolve under.
	BaseDir string

	// AllowedExtensions restricts write targets when non-empty (e.g. [".txt"]).
	AllowedExtensions []string

	// MaxFileSize is the read limit in bytes.
	MaxFileSize int64

	// CreateDirectories lets writes create missing parent directories.
	CreateDirectories bool
}

// fallbackEncoding pairs a name with a decoder tried after UTF-8 fails.
type fallbackEncoding struct {
	name string
	enc  encoding.Encoding
}

// fallbackEncodings is the ordered list of decoders tried for non-UTF-8
// content. Latin-1 accepts any byte sequence, so it is last.
var fallbackEncodings = []fallbackEncoding{
	{"gbk", simplifiedchinese.GBK},
	{"latin-1", charmap.ISO8859_1},
}

// FileTools provides the sandboxed filesystem handlers.
type FileTools struct {
	cfg    FileConfig
	base   string
	logger *slog.Logger
}

// NewFileTools resolves the base directory and returns the handler set.
func NewFileTools(cfg FileConfig, logger *slog.Logger) (*FileTools, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("file tools: base directory is required")
	}
	base, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("file tools: resolving base directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileTools{cfg: cfg, base: base, logger: logger}, nil
}

// pathSynonyms are the aliases inconsistent external callers use for the
// canonical file_path argument.
var pathSynonyms = map[string]string{
	"path":     "file_path",
	"filepath": "file_path",
	"file":     "file_path",
	"text":     "content",
	"data":     "content",
}

var dirSynonyms = map[string]string{
	"path":      "directory_path",
	"dir":       "directory_path",
	"directory": "directory_path",
}

// Register adds the file tools to the registry.
func (f *FileTools) Register(r *Registry) {
	r.Register(Descriptor{
		Name:        "read_file",
		Description: "Read the contents of a file inside the sandbox",
		InputSchema: []byte(`{"type":"object","properties":{"file_path":{"type":"string","description":"Path of the file to read"}},"required":["file_path"]}`),
		Synonyms:    pathSynonyms,
	}, f.ReadFile)

	r.Register(Descriptor{
		Name:        "write_file",
		Description: "Write content to a file inside the sandbox",
		InputSchema: []byte(`{"type":"object","properties":{"file_path":{"type":"string","description":"Path of the file to write"},"content":{"type":"string","description":"Content to write"}},"required":["file_path","content"]}`),
		Synonyms:    pathSynonyms,
	}, f.WriteFile)

	r.Register(Descriptor{
		Name:        "append_file",
		Description: "Append content to a file inside the sandbox, creating it if missing",
		InputSchema: []byte(`{"type":"object","properties":{"file_path":{"type":"string","description":"Path of the file to append to"},"content":{"type":"string","description":"Content to append"}},"required":["file_path","content"]}`),
		Synonyms:    pathSynonyms,
	}, f.AppendFile)

	r.Register(Descriptor{
		Name:        "list_files",
		Description: "List the entries of a directory inside the sandbox",
		InputSchema: []byte(`{"type":"object","properties":{"directory_path":{"type":"string","description":"Directory to list"}},"required":["directory_path"]}`),
		Synonyms:    dirSynonyms,
	}, f.ListFiles)
}

// resolve turns a caller-supplied path into an absolute path and enforces
// the sandbox boundary. Relative paths are anchored at the base directory.
func (f *FileTools) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.base, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %q: %v", ErrIOFailure, path, err)
	}
	if abs != f.base && !strings.HasPrefix(abs, f.base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q resolves outside base directory %q", ErrSandboxViolation, path, f.base)
	}
	return abs, nil
}

// checkExtension enforces the write allow-list. An empty list allows all.
func (f *FileTools) checkExtension(path string) error {
	if len(f.cfg.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range f.cfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: extension %q not allowed (allowed: %s)",
		ErrSandboxViolation, ext, strings.Join(f.cfg.AllowedExtensions, ", "))
}

// ReadFile reads a file, enforcing the size limit and decoding the content
// as UTF-8 with GBK and Latin-1 fallbacks.
func (f *FileTools) ReadFile(_ context.Context, args map[string]any) (any, error) {
	path, err := stringArg(args, "file_path")
	if err != nil {
		return nil, err
	}
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: file %q does not exist", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stat %q: %v", ErrIOFailure, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %q is a directory, not a file", ErrWrongType, path)
	}
	if f.cfg.MaxFileSize > 0 && info.Size() > f.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %q is %d bytes (limit %d)", ErrTooLarge, path, info.Size(), f.cfg.MaxFileSize)
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", ErrIOFailure, path, err)
	}

	content, encName, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not decodable text", ErrDecodeFailure, path)
	}

	f.logger.Info("file read", "path", abs, "size", info.Size(), "encoding", encName)

	result := map[string]any{
		"path":    abs,
		"size":    info.Size(),
		"content": content,
	}
	if encName != "utf-8" {
		result["encoding"] = encName
	}
	return result, nil
}

// decodeText decodes raw bytes as UTF-8, then tries the fallback encodings
// in order. A fallback that leaves replacement runes in the output is
// treated as a failed decode.
func decodeText(raw []byte) (string, string, error) {
	if utf8.Valid(raw) {
		return string(raw), "utf-8", nil
	}
	for _, fb := range fallbackEncodings {
		decoded, err := fb.enc.NewDecoder().Bytes(raw)
		if err != nil || strings.ContainsRune(string(decoded), utf8.RuneError) {
			continue
		}
		return string(decoded), fb.name, nil
	}
	return "", "", ErrDecodeFailure
}

// WriteFile writes content to a sandboxed path, enforcing the extension
// allow-list before any disk mutation.
func (f *FileTools) WriteFile(_ context.Context, args map[string]any) (any, error) {
	return f.write(args, false)
}

// AppendFile appends content to a sandboxed path, creating the file if it
// does not exist. The same sandbox and extension rules as WriteFile apply.
func (f *FileTools) AppendFile(_ context.Context, args map[string]any) (any, error) {
	return f.write(args, true)
}

func (f *FileTools) write(args map[string]any, appendMode bool) (any, error) {
	path, err := stringArg(args, "file_path")
	if err != nil {
		return nil, err
	}
	content, err := contentArg(args, "content")
	if err != nil {
		return nil, err
	}

	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := f.checkExtension(abs); err != nil {
		return nil, err
	}

	dir := filepath.Dir(abs)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if !f.cfg.CreateDirectories {
			return nil, fmt.Errorf("%w: directory %q does not exist", ErrNotFound, dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating %q: %v", ErrIOFailure, dir, err)
		}
		f.logger.Info("directory created", "path", dir)
	}

	if appendMode {
		fh, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%w: opening %q: %v", ErrIOFailure, path, err)
		}
		defer fh.Close()
		if _, err := fh.WriteString(content); err != nil {
			return nil, fmt.Errorf("%w: appending to %q: %v", ErrIOFailure, path, err)
		}
	} else {
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("%w: writing %q: %v", ErrIOFailure, path, err)
		}
	}

	f.logger.Info("file written", "path", abs, "bytes", len(content), "append", appendMode)

	return map[string]any{
		"path":          abs,
		"bytes_written": len(content),
	}, nil
}

// ListEntry describes one directory entry in a listing.
type ListEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// Listing is the result of a list_files invocation. Empty distinguishes an
// empty directory from a failed listing.
type Listing struct {
	Path       string      `json:"path"`
	Entries    []ListEntry `json:"entries"`
	TotalFiles int         `json:"total_files"`
	TotalDirs  int         `json:"total_dirs"`
	Empty      bool        `json:"empty"`
}

// ListFiles lists a sandboxed directory with per-entry type and size.
func (f *FileTools) ListFiles(_ context.Context, args map[string]any) (any, error) {
	path, err := stringArg(args, "directory_path")
	if err != nil {
		return nil, err
	}
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: directory %q does not exist", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stat %q: %v", ErrIOFailure, path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is a file, not a directory", ErrWrongType, path)
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %q: %v", ErrIOFailure, path, err)
	}

	listing := &Listing{Path: abs, Entries: make([]ListEntry, 0, len(dirEntries))}
	for _, de := range dirEntries {
		entry := ListEntry{Name: de.Name()}
		switch {
		case de.IsDir():
			entry.Type = "directory"
			listing.TotalDirs++
		default:
			entry.Type = "file"
			// Entry may vanish between ReadDir and Info; size 0 is fine then.
			if fi, err := de.Info(); err == nil {
				entry.Size = fi.Size()
			}
			listing.TotalFiles++
		}
		listing.Entries = append(listing.Entries, entry)
	}
	listing.Empty = len(listing.Entries) == 0

	f.logger.Info("directory listed",
		"path", abs,
		"files", listing.TotalFiles,
		"dirs", listing.TotalDirs,
	)
	return listing, nil
}
