package index

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/colloquy/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%04d", i)
	}
	return strings.Join(words, " ")
}

func TestSplitDocuments_BoundsAndOverlap(t *testing.T) {
	doc := core.Document{
		Content:  numberedWords(1200),
		Metadata: map[string]string{core.MetadataSourceFilename: "long.pdf", core.MetadataPage: "3"},
	}

	chunks, err := SplitDocuments([]core.Document{doc}, DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), DefaultChunkSize)
		assert.Equal(t, "long.pdf", c.Source())
		assert.Equal(t, "3", c.Metadata[core.MetadataPage])
		assert.Equal(t, fmt.Sprint(i), c.Metadata[core.MetadataChunkIndex])
	}
	for i := 1; i < len(chunks); i++ {
		first := strings.Fields(chunks[i].Content)[0]
		assert.Contains(t, chunks[i-1].Content, first, "chunk %d does not overlap its predecessor", i)
	}
}

func TestSplitDocuments_PrefersParagraphs(t *testing.T) {
	para := strings.Repeat("a", 600)
	doc := core.Document{
		Content:  para + "\n\n" + para + "\n\n" + para,
		Metadata: map[string]string{core.MetadataSourceFilename: "p.pdf"},
	}

	chunks, err := SplitDocuments([]core.Document{doc}, 1400, 200)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.NotContains(t, c.Content, "\n\n\n")
		assert.LessOrEqual(t, len(c.Content), 1400)
	}
}

func TestSplitDocuments_ShortAndBlank(t *testing.T) {
	docs := []core.Document{
		{Content: "short text", Metadata: map[string]string{core.MetadataSourceFilename: "a.pdf"}},
		{Content: "   \n", Metadata: map[string]string{core.MetadataSourceFilename: "a.pdf"}},
	}

	chunks, err := SplitDocuments(docs, 100, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Content)
}

func TestSplitDocuments_DoesNotShareMetadata(t *testing.T) {
	meta := map[string]string{core.MetadataSourceFilename: "a.pdf"}
	doc := core.Document{Content: numberedWords(100), Metadata: meta}

	chunks, err := SplitDocuments([]core.Document{doc}, 200, 20)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	chunks[0].Metadata["extra"] = "x"
	assert.NotContains(t, chunks[1].Metadata, "extra")
	assert.NotContains(t, meta, core.MetadataChunkIndex)
}

func TestSplitDocuments_InvalidChunking(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SplitDocuments([]core.Document{{Content: "x"}}, tt.size, tt.overlap)
			assert.ErrorIs(t, err, core.ErrInvalidChunking)
		})
	}
}
