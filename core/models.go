package core

import (
	"encoding/binary"
	"maps"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Role identifies the author of a message in a session history.
type Role int

const (
	// RoleSystem carries instructions and announcements.
	RoleSystem Role = iota + 1
	// RoleHuman represents the user.
	RoleHuman
	// RoleAssistant represents the model.
	RoleAssistant
	// RoleTool carries the output of a tool invocation.
	RoleTool
)

func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleHuman:
		return "human"
	case RoleAssistant:
		return "assistant"
	case RoleTool:
		return "tool"
	default:
		return "unknown"
	}
}

// ToolCall is a structured request emitted by the model to invoke a named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON as produced by the model
}

// ToolResult links the output of a tool back to the call that produced it.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
}

// Message is a single entry in a session history.
type Message struct {
	Role       Role
	Content    string
	ToolCall   *ToolCall   // set on assistant messages that request a tool
	ToolResult *ToolResult // set on tool messages
	Timestamp  time.Time
}

// SystemMessage builds a system message stamped with the current time.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text, Timestamp: time.Now()}
}

// HumanMessage builds a human message stamped with the current time.
func HumanMessage(text string) Message {
	return Message{Role: RoleHuman, Content: text, Timestamp: time.Now()}
}

// AssistantMessage builds an assistant message stamped with the current time.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text, Timestamp: time.Now()}
}

// ToolCallMessage builds an assistant message requesting the given tool call.
func ToolCallMessage(call ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCall: &call, Timestamp: time.Now()}
}

// ToolResultMessage builds a tool message answering the given call.
func ToolResultMessage(call ToolCall, result string) Message {
	return Message{
		Role:    RoleTool,
		Content: result,
		ToolResult: &ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: result,
		},
		Timestamp: time.Now(),
	}
}

// MetadataSourceFilename is the metadata key naming the file a document came from.
const MetadataSourceFilename = "source-filename"

// MetadataPage is the metadata key holding the page number of a PDF document.
const MetadataPage = "page"

// MetadataChunkIndex is the metadata key holding a chunk's position within its document.
const MetadataChunkIndex = "chunk-index"

// Document is a unit of text extracted from an uploaded file.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Source returns the filename the document was extracted from.
func (d Document) Source() string {
	return d.Metadata[MetadataSourceFilename]
}

// Chunk is a fragment of a Document sized for embedding and retrieval.
type Chunk struct {
	Id         ID
	Content    string
	Metadata   map[string]string // inherited from the parent document
	Vector     []float32
	InsertedAt time.Time
}

// Source returns the filename the chunk's document was extracted from.
func (c *Chunk) Source() string {
	return c.Metadata[MetadataSourceFilename]
}

// Clone returns a deep copy of the chunk.
func (c *Chunk) Clone() *Chunk {
	out := *c
	out.Metadata = maps.Clone(c.Metadata)
	if c.Vector != nil {
		out.Vector = append([]float32(nil), c.Vector...)
	}
	return &out
}

// Source records one file merged into a session's index.
type Source struct {
	Filename       string
	Fingerprint    ID // IDFromContent over the extracted text
	Chunks         int
	EmbeddingModel string
	IndexedAt      time.Time
}

// Dataset is an in-memory table parsed from a delimited file.
// Rows hold raw cell text; every row has len(Columns) cells.
type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// SearchResult represents a retrieved chunk and its similarity score.
type SearchResult struct {
	Chunk *Chunk
	Score float32
}

// Checkpoint records how far a maintenance job has progressed through a
// collection's chunks.
type Checkpoint struct {
	Job       string
	LastID    ID
	UpdatedAt time.Time
}
