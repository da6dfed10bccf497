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


package mock

import (
	"sync/atomic"

	"github.com/poiesic/colloquy/ai"
)

// MockProvider hands out a MockEmbedder and a MockGenerator and remembers
// whether it was closed.
type MockProvider struct {
	Embeddings *MockEmbedder
	Replies    *MockGenerator
	config     *ai.Config
	closed     atomic.Bool
}

// NewMockProvider returns a provider backed by fresh mocks.
func NewMockProvider() *MockProvider {
	return NewMockProviderWith(NewMockEmbedder(), NewMockGenerator())
}

// NewMockProviderWith wraps existing mocks so a test can script them first.
func NewMockProviderWith(embedder *MockEmbedder, generator *MockGenerator) *MockProvider {
	return &MockProvider{Embeddings: embedder, Replies: generator, config: ai.DefaultConfig()}
}

func (p *MockProvider) Embedder() ai.Embedder   { return p.Embeddings }
func (p *MockProvider) Generator() ai.Generator { return p.Replies }
func (p *MockProvider) Config() *ai.Config      { return p.config }

func (p *MockProvider) Close() error {
	p.closed.Store(true)
	return nil
}

// Closed reports whether Close has been called.
func (p *MockProvider) Closed() bool {
	return p.closed.Load()
}
