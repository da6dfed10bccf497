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


// Package ai provides abstractions for the language model services colloquy
// depends on.
//
// The package defines three interfaces:
//
//   - Generator: produces the next assistant message, optionally calling tools
//   - Embedder: generates vector embeddings from text
//   - AIProvider: aggregates both for convenient initialization
//
// Generation parameters are set once in Config (temperature, stop words,
// context window, streaming) and can be overridden per call with
// GenerateOption values such as WithCallTemperature and WithToolChoice.
//
// # Implementation Packages
//
//   - ai/openai: implementation for OpenAI-compatible APIs (Ollama, vLLM, LocalAI)
//   - ai/mock: test doubles for unit testing without external services
//
// Public constructors in ai/openai return interface types. Constructors in
// ai/mock return concrete types so tests can script replies and inspect calls.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	reply, err := provider.Generator().Generate(ctx, []core.Message{
//	    core.HumanMessage("Hello"),
//	})
package ai
