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

import "fmt"

// ValidateMessage validates a Message according to domain rules.
//
// Validation rules:
//   - Role must be valid
//   - Content must not be empty, except on assistant messages carrying a tool call
//   - Tool calls must have an ID and a name
//   - Tool messages must carry a ToolResult
func ValidateMessage(msg Message) error {
	if err := ValidateRole(msg.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if msg.ToolCall != nil {
		if msg.Role != RoleAssistant {
			return fmt.Errorf("%w: tool call on %s message", ErrInvalidMessage, msg.Role)
		}
		if msg.ToolCall.ID == "" {
			return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrMissingToolCallID)
		}
		if msg.ToolCall.Name == "" {
			return fmt.Errorf("%w: tool call name cannot be empty", ErrInvalidMessage)
		}
		return nil
	}

	if msg.Role == RoleTool && msg.ToolResult == nil {
		return fmt.Errorf("%w: tool message without result", ErrInvalidMessage)
	}

	if msg.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyContent)
	}
	return nil
}

// ValidateRole validates that a Role has a valid value.
func ValidateRole(role Role) error {
	if role < RoleSystem || role > RoleTool {
		return fmt.Errorf("%w: value %d", ErrInvalidRole, role)
	}
	return nil
}

// ValidateHistory validates every message and checks that each tool result
// references a tool call made earlier in the same history.
func ValidateHistory(history []Message) error {
	calls := make(map[string]struct{})
	for i, msg := range history {
		if err := ValidateMessage(msg); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if msg.ToolCall != nil {
			calls[msg.ToolCall.ID] = struct{}{}
		}
		if msg.ToolResult != nil {
			if _, ok := calls[msg.ToolResult.CallID]; !ok {
				return fmt.Errorf("message %d: %w: %q", i, ErrOrphanToolResult, msg.ToolResult.CallID)
			}
		}
	}
	return nil
}

// ValidateChunking checks 0 <= overlap < size.
func ValidateChunking(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, size, overlap)
	}
	return nil
}
