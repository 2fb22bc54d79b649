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
	"strings"

	"github.com/poiesic/ragline/ai"
	"github.com/tmc/langchaingo/llms/openai"
)

const hostedAPIHost = "api.openai.com"

// newClient builds a langchaingo OpenAI client from the shared AI config.
// Hosted OpenAI requires a key; compatible local servers accept any token.
func newClient(config *ai.Config, opts ...openai.Option) (*openai.LLM, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	token := config.OpenAIAPIKey
	if token == "" {
		if strings.Contains(config.OpenAIHost, hostedAPIHost) {
			return nil, ai.ErrMissingCredentials
		}
		// Use "none" as token for local OpenAI-compatible services that don't require authentication
		token = "none"
	}

	base := []openai.Option{
		openai.WithBaseURL(config.OpenAIHost),
		openai.WithToken(token),
	}
	return openai.New(append(base, opts...)...)
}
