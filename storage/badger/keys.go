package badger

import (
	"encoding/binary"

	"github.com/poiesic/colloquy/core"
	"github.com/poiesic/colloquy/storage"
)

var errClosed = storage.ErrStorageClosed

const (
	chunkSegment      = "chunk"
	sourceSegment     = "source"
	checkpointSegment = "chkpt"
	chunkIDSeqSegment = "chunkseq"
	chunkMarkSegment  = "chunkmark"
)

// keyspace builds keys scoped to one collection so several collections can
// share a database without colliding.
type keyspace string

func (k keyspace) prefix(segment string) []byte {
	return []byte(string(k) + "/" + segment + "/")
}

func (k keyspace) chunkPrefix() []byte {
	return k.prefix(chunkSegment)
}

func (k keyspace) chunkKey(id core.ID) []byte {
	prefix := k.chunkPrefix()
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// BigEndian so that lexicographic key order is ID order
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

func (k keyspace) sourcePrefix() []byte {
	return k.prefix(sourceSegment)
}

func (k keyspace) sourceKey(filename string) []byte {
	return append(k.sourcePrefix(), filename...)
}

func (k keyspace) checkpointKey(job string) []byte {
	return append(k.prefix(checkpointSegment), job...)
}

// markKey holds the highest committed chunk ID. Chunks above it belong to an
// unfinished write and are invisible.
func (k keyspace) markKey() []byte {
	return []byte(string(k) + "/" + chunkMarkSegment)
}

func (k keyspace) sequenceKey() string {
	return string(k) + "/" + chunkIDSeqSegment
}
