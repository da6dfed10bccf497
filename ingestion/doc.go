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


// Package ingestion turns uploaded files into material the assistant can use.
//
// The file extension decides the path:
//
//   - .pdf files are parsed into one Document per page, each tagged with the
//     source filename and page number, ready for chunking and indexing
//   - .csv files are parsed into an in-memory Dataset for the tabular tool
//
// Any other extension is rejected with a core.UnsupportedFormatError before
// anything touches the filesystem. Parsers that need a file path get a scoped
// temporary file that is removed on every exit path.
package ingestion
