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

package storage

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/ragline/core"
)

func marshal(kind string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSerializationFailed, kind, err)
	}
	return data, nil
}

func unmarshal[T any](kind string, data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTruncatedData, kind)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSerializationFailed, kind, err)
	}
	return &v, nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	return marshal("document", doc)
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	return unmarshal[core.Document]("document", data)
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) ([]byte, error) {
	return marshal("chunk", chunk)
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	return unmarshal[core.Chunk]("chunk", data)
}

// MarshalJob serializes an EnhancementJob to bytes.
func MarshalJob(job *core.EnhancementJob) ([]byte, error) {
	return marshal("job", job)
}

// UnmarshalJob deserializes an EnhancementJob from bytes.
func UnmarshalJob(data []byte) (*core.EnhancementJob, error) {
	return unmarshal[core.EnhancementJob]("job", data)
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) ([]byte, error) {
	return marshal("checkpoint", checkpoint)
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	return unmarshal[core.Checkpoint]("checkpoint", data)
}
