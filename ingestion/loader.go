package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/colloquy/core"
)

// Kind identifies what a file was ingested as.
type Kind int

const (
	// KindDocuments marks text documents destined for the retrieval index.
	KindDocuments Kind = iota + 1
	// KindDataset marks tabular data destined for the tabular tool.
	KindDataset
)

func (k Kind) String() string {
	switch k {
	case KindDocuments:
		return "documents"
	case KindDataset:
		return "dataset"
	default:
		return "unknown"
	}
}

// Result is the outcome of ingesting one file. Exactly one of Documents and
// Dataset is set, according to Kind.
type Result struct {
	Kind      Kind
	Filename  string
	Documents []core.Document
	Dataset   *core.Dataset
}

const defaultMaxBytes = 64 << 20

// Loader parses uploads by extension.
type Loader struct {
	tempDir  string
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithTempDir sets where scoped temporary files are created.
// Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(l *Loader) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		l.tempDir = dir
		return nil
	}
}

// WithMaxBytes limits the size of an accepted upload.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) error {
		if n <= 0 {
			return fmt.Errorf("max bytes must be positive, got %d", n)
		}
		l.maxBytes = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) (*Loader, error) {
	l := &Loader{
		maxBytes: defaultMaxBytes,
		logger:   slog.Default().With("component", "ingestion"),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// SupportedExtensions lists the extensions Load accepts.
func SupportedExtensions() []string {
	return []string{".pdf", ".csv"}
}

// KindOf reports, from its extension, what an upload named filename
// produces. ok is false for unsupported files.
func KindOf(filename string) (kind Kind, ok bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindDocuments, true
	case ".csv":
		return KindDataset, true
	}
	return 0, false
}

// Load parses the upload named filename whose content is read from r.
func (l *Loader) Load(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	base := filepath.Base(filename)

	switch ext {
	case ".pdf":
		docs, err := l.loadPDF(ctx, base, r)
		if err != nil {
			return nil, err
		}
		l.logger.Info("ingested pdf", "file", base, "pages", len(docs))
		return &Result{Kind: KindDocuments, Filename: base, Documents: docs}, nil

	case ".csv":
		ds, err := l.loadCSV(ctx, base, r)
		if err != nil {
			return nil, err
		}
		l.logger.Info("ingested csv", "file", base, "rows", len(ds.Rows), "columns", len(ds.Columns))
		return &Result{Kind: KindDataset, Filename: base, Dataset: ds}, nil

	default:
		return nil, &core.UnsupportedFormatError{Filename: base, Extension: ext}
	}
}

// readLimited reads all of r, failing when it exceeds the configured limit.
func (l *Loader) readLimited(filename string, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, &core.ParseError{Filename: filename, Err: err}
	}
	if int64(len(data)) > l.maxBytes {
		return nil, &core.ParseError{Filename: filename, Err: ErrFileTooLarge}
	}
	if len(data) == 0 {
		return nil, &core.ParseError{Filename: filename, Err: ErrEmptyFile}
	}
	return data, nil
}
