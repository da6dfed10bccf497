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


package openai

import (
	"log/slog"

	"github.com/poiesic/colloquy/ai"
)

// Provider bundles the chat generator and the embedder that talk to
// OpenAI-compatible endpoints. The two may point at different hosts.
type Provider struct {
	config    ai.Config
	generator *Generator
	embedder  *Embedder
	logger    *slog.Logger
}

// NewProvider validates config and connects both services. The provider
// keeps its own copy of the normalized config, so later edits to config do
// not reach the running clients.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	cfg := *config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	generator, err := newGenerator(&cfg)
	if err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(&cfg)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		config:    cfg,
		generator: generator,
		embedder:  embedder,
		logger:    slog.Default().With("component", "openai-provider"),
	}
	p.logger.Info("model services configured",
		"chatHost", cfg.ChatHost,
		"chatModel", cfg.ChatModel,
		"embeddingHost", cfg.EmbeddingHost,
		"embeddingModel", cfg.EmbeddingModel,
		"promptStyle", cfg.PromptStyle)
	return p, nil
}

func (p *Provider) Generator() ai.Generator { return p.generator }

func (p *Provider) Embedder() ai.Embedder { return p.embedder }

func (p *Provider) Config() *ai.Config { return &p.config }

// Close is a no-op; the HTTP clients hold no resources that need releasing.
func (p *Provider) Close() error {
	p.logger.Debug("provider closed")
	return nil
}
