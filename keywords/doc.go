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

// Package keywords derives ranked keyword lists for chunks.
//
// Candidates are noun phrases found by part-of-speech tagging: runs of
// adjectives followed by nouns. Each candidate is weighted by its term
// frequency in the chunk times its inverse document frequency across the
// sibling chunks of the same document, so rare but salient phrases outrank
// generic nouns. Phrases that also appear in the chunk summary are boosted.
//
// When tagging is unavailable or fails, extraction falls back to a plain
// frequency count over alphabetic tokens minus stopwords. Extraction never
// returns an error and never panics.
package keywords
