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

// repairJSON rewrites tool-call arguments that a model emitted as almost-JSON.
// It quotes bare or half-quoted object keys and drops trailing commas before
// a closing brace or bracket. String contents are copied untouched. Input that
// is already valid passes through unchanged.
func repairJSON(s string) string {
	out := make([]byte, 0, len(s)+8)
	var stack []byte
	expectKey := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			end := stringEnd(s, i)
			out = append(out, s[i:end]...)
			i = end - 1
			expectKey = false
		case c == '{':
			stack = append(stack, c)
			out = append(out, c)
			expectKey = true
		case c == '[':
			stack = append(stack, c)
			out = append(out, c)
			expectKey = false
		case c == '}' || c == ']':
			out = trimTrailingComma(out)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			out = append(out, c)
			expectKey = false
		case c == ',':
			out = append(out, c)
			expectKey = len(stack) > 0 && stack[len(stack)-1] == '{'
		case expectKey && isKeyStart(c):
			j := i + 1
			for j < len(s) && isKeyRune(s[j]) {
				j++
			}
			out = append(out, '"')
			out = append(out, s[i:j]...)
			out = append(out, '"')
			if j < len(s) && s[j] == '"' {
				j++
			}
			i = j - 1
			expectKey = false
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// stringEnd returns the index just past the closing quote of the string
// starting at s[start], or len(s) when the string is unterminated.
func stringEnd(s string, start int) int {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(s)
}

func trimTrailingComma(out []byte) []byte {
	i := len(out) - 1
	for i >= 0 && isSpace(out[i]) {
		i--
	}
	if i >= 0 && out[i] == ',' {
		return append(out[:i], out[i+1:]...)
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isKeyStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKeyRune(c byte) bool {
	return isKeyStart(c) || c == '-' || (c >= '0' && c <= '9')
}
