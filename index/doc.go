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


// Package index manages the per-session retrieval indexes.
//
// Each session owns one persistent index stored in its own badger directory,
// root/session_<id>, with every key under the collection prefix
// session_<id>. Uploads are split into overlapping chunks, embedded in
// parallel batches and merged into the index in a single transaction, so an
// index grows cumulatively and a search never sees a half-merged upload.
//
// The Manager opens, creates and caches indexes; a Retriever is the handle
// the conversation layer searches through.
package index
