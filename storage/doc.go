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


// Package storage defines the persistence interfaces for colloquy's
// retrieval indexes and the binary encoding of stored records.
//
// Each session's index is a collection of embedded chunks plus a manifest of
// the source files merged into it. Implementations live in sub-packages; the
// storage/badger package keeps every collection in its own BadgerDB directory
// with collection-prefixed keys.
//
// Records are encoded with mus-go primitives: varints for integers and
// lengths, length-prefixed strings, and fixed-width little-endian floats for
// vectors. Timestamps are stored as Unix microseconds.
package storage
