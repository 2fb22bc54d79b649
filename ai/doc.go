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

// Package ai provides abstractions for the model services used by ragline.
//
// The core interfaces are:
//
//   - Embedder: turns text into vectors
//   - QueryEmbedder: optional query-side encoding for asymmetric models
//   - Generator: turns a prompt into free text (chunk summaries)
//
// Provider identifies the service behind a model. The set is closed
// (OpenAI, Google, Local); the embedding router maps model identifiers to
// providers through a static table rather than by inspecting names.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI and OpenAI-compatible APIs through langchaingo
//   - ai/gemini: Google Gemini through generative-ai-go
//   - ai/local: in-process embedding model with no network dependency
//   - ai/mock: test doubles
//
// Public constructors return interface types. Mock constructors return
// concrete types so tests can inject behavior and inspect call counts.
//
//	cfg := ai.NewConfig(ai.WithOpenAIAPIKey(os.Getenv("OPENAI_API_KEY")))
//	embedder, err := openai.NewEmbedder(cfg, "text-embedding-3-small", 1536)
//	if err != nil {
//	    return err
//	}
//	vec, err := embedder.EmbedText(ctx, "hello")
//
// The package also carries the retry helpers and vector math shared by the
// summarizer, the embedding router and the re-embedding pass.
package ai
