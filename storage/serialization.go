// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/colloquy/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: id: %w", ErrSerializationFailed, err)
	}
	return core.ID(id), nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	keys := slices.Sorted(maps.Keys(chunk.Metadata))

	size := varint.Uint64.Size(uint64(chunk.Id)) +
		ord.String.Size(chunk.Content) +
		varint.Int.Size(len(keys))
	for _, k := range keys {
		size += ord.String.Size(k) + ord.String.Size(chunk.Metadata[k])
	}
	size += varint.Int.Size(len(chunk.Vector)) + 4*len(chunk.Vector)
	size += varint.Int64.Size(timeToMicros(chunk.InsertedAt))

	e := encoder{buf: make([]byte, size)}
	e.n += varint.Uint64.Marshal(uint64(chunk.Id), e.buf[e.n:])
	e.n += ord.String.Marshal(chunk.Content, e.buf[e.n:])
	e.n += varint.Int.Marshal(len(keys), e.buf[e.n:])
	for _, k := range keys {
		e.n += ord.String.Marshal(k, e.buf[e.n:])
		e.n += ord.String.Marshal(chunk.Metadata[k], e.buf[e.n:])
	}
	e.n += varint.Int.Marshal(len(chunk.Vector), e.buf[e.n:])
	for _, v := range chunk.Vector {
		e.n += raw.Float32.Marshal(v, e.buf[e.n:])
	}
	e.n += varint.Int64.Marshal(timeToMicros(chunk.InsertedAt), e.buf[e.n:])
	return e.buf[:e.n]
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	d := decoder{buf: data}
	chunk := &core.Chunk{}

	chunk.Id = core.ID(d.uint64())
	chunk.Content = d.string()

	if n := d.length(2); n > 0 {
		chunk.Metadata = make(map[string]string, n)
		for i := 0; i < n && d.err == nil; i++ {
			k := d.string()
			chunk.Metadata[k] = d.string()
		}
	}

	if n := d.length(4); n > 0 {
		chunk.Vector = make([]float32, n)
		for i := 0; i < n && d.err == nil; i++ {
			chunk.Vector[i] = d.float32()
		}
	}

	chunk.InsertedAt = microsToTime(d.int64())

	if d.err != nil {
		return nil, fmt.Errorf("%w: chunk: %w", ErrSerializationFailed, d.err)
	}
	return chunk, nil
}

// MarshalSource serializes a Source manifest to bytes.
func MarshalSource(src *core.Source) []byte {
	size := ord.String.Size(src.Filename) +
		varint.Uint64.Size(uint64(src.Fingerprint)) +
		varint.Int.Size(src.Chunks) +
		ord.String.Size(src.EmbeddingModel) +
		varint.Int64.Size(timeToMicros(src.IndexedAt))

	e := encoder{buf: make([]byte, size)}
	e.n += ord.String.Marshal(src.Filename, e.buf[e.n:])
	e.n += varint.Uint64.Marshal(uint64(src.Fingerprint), e.buf[e.n:])
	e.n += varint.Int.Marshal(src.Chunks, e.buf[e.n:])
	e.n += ord.String.Marshal(src.EmbeddingModel, e.buf[e.n:])
	e.n += varint.Int64.Marshal(timeToMicros(src.IndexedAt), e.buf[e.n:])
	return e.buf[:e.n]
}

// UnmarshalSource deserializes a Source manifest from bytes.
func UnmarshalSource(data []byte) (*core.Source, error) {
	d := decoder{buf: data}
	src := &core.Source{
		Filename:       d.string(),
		Fingerprint:    core.ID(d.uint64()),
		Chunks:         d.int(),
		EmbeddingModel: d.string(),
		IndexedAt:      microsToTime(d.int64()),
	}
	if d.err != nil {
		return nil, fmt.Errorf("%w: source: %w", ErrSerializationFailed, d.err)
	}
	return src, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(cp *core.Checkpoint) []byte {
	size := ord.String.Size(cp.Job) +
		varint.Uint64.Size(uint64(cp.LastID)) +
		varint.Int64.Size(timeToMicros(cp.UpdatedAt))

	e := encoder{buf: make([]byte, size)}
	e.n += ord.String.Marshal(cp.Job, e.buf[e.n:])
	e.n += varint.Uint64.Marshal(uint64(cp.LastID), e.buf[e.n:])
	e.n += varint.Int64.Marshal(timeToMicros(cp.UpdatedAt), e.buf[e.n:])
	return e.buf[:e.n]
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	d := decoder{buf: data}
	cp := &core.Checkpoint{
		Job:       d.string(),
		LastID:    core.ID(d.uint64()),
		UpdatedAt: microsToTime(d.int64()),
	}
	if d.err != nil {
		return nil, fmt.Errorf("%w: checkpoint: %w", ErrSerializationFailed, d.err)
	}
	return cp, nil
}

type encoder struct {
	buf []byte
	n   int
}

// decoder reads fields in order and latches the first error.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) advance(n int, err error) bool {
	if err != nil {
		d.err = err
		return false
	}
	d.buf = d.buf[n:]
	return true
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.buf)
	if !d.advance(n, err) {
		return 0
	}
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.buf)
	if !d.advance(n, err) {
		return 0
	}
	return v
}

func (d *decoder) int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.buf)
	if !d.advance(n, err) {
		return 0
	}
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.buf)
	if !d.advance(n, err) {
		return ""
	}
	return v
}

func (d *decoder) float32() float32 {
	if d.err != nil {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(d.buf)
	if !d.advance(n, err) {
		return 0
	}
	return v
}

// length reads an element count and rejects counts the remaining bytes
// cannot hold, given the minimum encoded size of one element.
func (d *decoder) length(minElemSize int) int {
	n := d.int()
	if d.err != nil {
		return 0
	}
	if n < 0 || n > len(d.buf)/minElemSize {
		d.err = ErrTruncatedData
		return 0
	}
	return n
}

func timeToMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func microsToTime(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
