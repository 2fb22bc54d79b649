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

// Package openai provides model services backed by OpenAI or OpenAI-compatible
// APIs (Ollama, LocalAI, vLLM) through the langchaingo client.
//
// # Usage
//
//	cfg := ai.NewConfig(
//	    ai.WithOpenAIHost("http://localhost:11434"), // /v1 added automatically
//	    ai.WithOpenAIAPIKey(os.Getenv("OPENAI_API_KEY")),
//	)
//
//	embedder, err := openai.NewEmbedder(cfg, "text-embedding-3-small")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vec, err := embedder.EmbedText(ctx, "sample text")
//
//	generator, err := openai.NewGenerator(cfg, "gpt-4o-mini")
//	summary, err := generator.Generate(ctx, prompt)
package openai
