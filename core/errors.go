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

package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidJob indicates an EnhancementJob failed validation.
	ErrInvalidJob = errors.New("invalid enhancement job")

	// ErrEmptyContent indicates the content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrMissingOwner indicates the owner id is empty.
	ErrMissingOwner = errors.New("owner id cannot be empty")

	// ErrInvalidNamespace indicates a namespace could not be built or is empty.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrInvalidSummaryType indicates an unknown SummaryType value.
	ErrInvalidSummaryType = errors.New("invalid summary type")

	// ErrUnknownJobStatus indicates a status string that is not part of the lifecycle.
	ErrUnknownJobStatus = errors.New("unknown job status")

	// ErrInvalidTransition indicates a backward or post-terminal status change.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
