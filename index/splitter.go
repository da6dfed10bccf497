package index

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/poiesic/colloquy/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the default maximum chunk length in characters.
	DefaultChunkSize = 1400
	// DefaultChunkOverlap is the default overlap between adjacent chunks.
	DefaultChunkOverlap = 200
)

// Separators are tried in order, from paragraph breaks down to single characters.
var Separators = []string{"\n\n", "\n", " ", ""}

// SplitDocuments splits each document into overlapping chunks of at most
// chunkSize characters. Chunks inherit their document's metadata and record
// their position within it.
func SplitDocuments(docs []core.Document, chunkSize, chunkOverlap int) ([]*core.Chunk, error) {
	if err := core.ValidateChunking(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(Separators),
	)

	var chunks []*core.Chunk
	for i, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		parts, err := splitter.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to split document %d of %s: %w", i, doc.Source(), err)
		}
		n := 0
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			meta := maps.Clone(doc.Metadata)
			if meta == nil {
				meta = make(map[string]string, 1)
			}
			meta[core.MetadataChunkIndex] = strconv.Itoa(n)
			chunks = append(chunks, &core.Chunk{Content: part, Metadata: meta})
			n++
		}
	}
	return chunks, nil
}
