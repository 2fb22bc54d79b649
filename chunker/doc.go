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

// Package chunker splits document text into ordered, non-empty segments.
//
// Four strategies are available:
//
//   - token: fixed windows over a tokenizer's token stream with token overlap
//   - line: fixed windows of lines with line overlap
//   - recursive: recursive character splitting on paragraph, line, sentence
//     and word separators to fit a character budget
//   - semantic: cuts where the embedding distance between neighbouring
//     sentences exceeds a statistical threshold
//
// Configuration errors (unknown method, overlap not below window) are
// returned to the caller. A strategy that fails at runtime falls back to
// the token window strategy; the fallback is logged and reported in Result.
package chunker
