// Package codeblock extracts the single fenced code block a model emits
// per step, along with the free-text rationale that precedes it.
package codeblock

import (
	"errors"
	"strings"
)

// Sentinel is the marker that must follow the closing fence.
const Sentinel = "<end_action>"

// StopSequences are passed to the model so generation halts right after
// the code block instead of hallucinating an observation.
var StopSequences = []string{Sentinel, "Observation:"}

var (
	// ErrNoCodeBlockFound is returned when the text contains no code fence.
	ErrNoCodeBlockFound = errors.New("no code block found")

	// ErrMalformedTerminator is returned when a code block is present but not
	// closed and followed by Sentinel.
	ErrMalformedTerminator = errors.New("code block not terminated by " + Sentinel)
)

// Block is one parsed model step.
type Block struct {
	Rationale string
	Code      string
}

const fence = "```"

// Extract parses text and returns the first code block that is closed and
// immediately followed by Sentinel (whitespace allowed in between).
// Fences opened with ```, ```py or ```python are recognized; blocks in other
// languages are treated as prose.
func Extract(text string) (Block, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	sawCode := false
	for i := 0; i < len(lines); i++ {
		if !isCodeOpen(lines[i]) {
			continue
		}
		sawCode = true

		closeAt, rest := findClose(lines, i+1)
		if closeAt < 0 {
			break
		}
		if strings.HasPrefix(strings.TrimSpace(rest), Sentinel) {
			return Block{
				Rationale: rationale(strings.Join(lines[:i], "\n")),
				Code:      normalize(lines[i+1 : closeAt]),
			}, nil
		}
		i = closeAt
	}

	if !sawCode {
		return Block{}, ErrNoCodeBlockFound
	}
	return Block{}, ErrMalformedTerminator
}

// EnsureSentinel re-appends Sentinel when the model stopped on it, since
// stop sequences are not included in completions.
func EnsureSentinel(text string) string {
	trimmed := strings.TrimRight(text, " \t\n")
	if strings.HasSuffix(trimmed, fence) {
		return trimmed + Sentinel
	}
	return text
}

func isCodeOpen(line string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, fence) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(t[len(fence):])) {
	case "", "py", "python", "python3":
		return true
	}
	return false
}

// findClose returns the index of the closing fence line at or after start and
// the text following the fence up to the end of the input.
func findClose(lines []string, start int) (int, string) {
	for j := start; j < len(lines); j++ {
		t := strings.TrimSpace(lines[j])
		if !strings.HasPrefix(t, fence) {
			continue
		}
		after := strings.TrimSpace(t[len(fence):])
		if after != "" && !strings.HasPrefix(after, "<") {
			// ```python inside the block opens a nested fence; not a close.
			continue
		}
		rest := after
		if j+1 < len(lines) {
			rest += "\n" + strings.Join(lines[j+1:], "\n")
		}
		return j, rest
	}
	return -1, ""
}

// normalize trims blank leading/trailing lines and removes the indentation
// shared by every non-blank line.
func normalize(lines []string) string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	indent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}

	out := make([]string, len(lines))
	for i, l := range lines {
		l = strings.TrimRight(l, " \t")
		if len(l) >= indent && indent > 0 {
			l = l[indent:]
		}
		out[i] = l
	}
	return strings.Join(out, "\n")
}

func rationale(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "Code:"))
	s = strings.TrimSpace(strings.TrimPrefix(s, "Thought:"))
	return s
}
