package ingestion

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/poiesic/colloquy/core"
	"github.com/tmc/langchaingo/documentloaders"
)

// loadPDF spools the upload into a scoped temporary file and extracts one
// document per page with text.
func (l *Loader) loadPDF(ctx context.Context, filename string, r io.Reader) (docs []core.Document, err error) {
	tmp, err := os.CreateTemp(l.tempDir, "colloquy-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file for %s: %w", filename, err)
	}
	defer func() {
		tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			l.logger.Warn("failed to remove temp file", "path", tmp.Name(), "err", rmErr)
		}
	}()

	size, err := io.Copy(tmp, io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, &core.ParseError{Filename: filename, Err: err}
	}
	if size > l.maxBytes {
		return nil, &core.ParseError{Filename: filename, Err: ErrFileTooLarge}
	}
	if size == 0 {
		return nil, &core.ParseError{Filename: filename, Err: ErrEmptyFile}
	}

	// The PDF reader panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			docs = nil
			err = &core.ParseError{Filename: filename, Err: fmt.Errorf("malformed pdf: %v", p)}
		}
	}()

	pages, err := documentloaders.NewPDF(tmp, size).Load(ctx)
	if err != nil {
		return nil, &core.ParseError{Filename: filename, Err: err}
	}

	for _, page := range pages {
		text := strings.TrimSpace(page.PageContent)
		if text == "" {
			continue
		}
		meta := map[string]string{core.MetadataSourceFilename: filename}
		if p, ok := page.Metadata["page"]; ok {
			meta[core.MetadataPage] = fmt.Sprint(p)
		}
		docs = append(docs, core.Document{Content: text, Metadata: meta})
	}
	if len(docs) == 0 {
		return nil, &core.ParseError{Filename: filename, Err: ErrNoText}
	}
	return docs, nil
}
