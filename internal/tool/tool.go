// Package tool defines the callable capabilities an agent can use from the
// code it writes. Each tool publishes an immutable Spec (name, description,
// typed inputs and output type); the Registry validates arguments against
// it before every invocation.
package tool

import (
	"context"
	"fmt"
)

// OutputType is the kind of value a tool returns.
type OutputType string

// OutputType values.
const (
	OutputText  OutputType = "text"
	OutputImage OutputType = "image"
	OutputAudio OutputType = "audio"
)

// Valid reports whether t is a known output type.
func (t OutputType) Valid() bool {
	switch t {
	case OutputText, OutputImage, OutputAudio:
		return true
	}
	return false
}

// InputType is the declared type of a tool input.
type InputType string

// InputType values.
const (
	InputString  InputType = "string"
	InputInteger InputType = "integer"
	InputNumber  InputType = "number"
	InputBoolean InputType = "boolean"
	InputArray   InputType = "array"
	InputObject  InputType = "object"
	InputAny     InputType = "any"
)

// Input describes one named parameter of a tool.
type Input struct {
	Name        string    `json:"name"`
	Type        InputType `json:"type"`
	Description string    `json:"description"`
	// Nullable inputs may be omitted or passed as None.
	Nullable bool `json:"nullable,omitempty"`
}

// Spec is the immutable description of a tool. Inputs are ordered so that
// positional calls from scripts map onto them deterministically.
type Spec struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Inputs      []Input    `json:"inputs"`
	OutputType  OutputType `json:"output_type"`
}

// Input returns the input with the given name.
func (s Spec) Input(name string) (Input, bool) {
	for _, in := range s.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}

// Args are the arguments of one tool call, keyed by input name.
// Values are plain Go values: string, int64, float64, bool, nil,
// []any and map[string]any.
type Args map[string]any

// Result is the typed output of a tool call.
type Result struct {
	Type OutputType `json:"type"`
	// Text holds the output for text tools.
	Text string `json:"text,omitempty"`
	// Path locates the produced file for image and audio tools.
	Path     string `json:"path,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// TextResult is shorthand for a text Result.
func TextResult(s string) Result {
	return Result{Type: OutputText, Text: s}
}

// String renders the result the way it appears in an observation.
func (r Result) String() string {
	if r.Type == OutputText || r.Type == "" {
		return r.Text
	}
	return fmt.Sprintf("<%s %s>", r.Type, r.Path)
}

// Tool is a capability callable from agent code.
type Tool interface {
	// Spec describes the tool. It must return the same value on every call.
	Spec() Spec

	// Invoke runs the tool. args have already been validated against Spec.
	Invoke(ctx context.Context, args Args) (Result, error)
}

// FinalAnswer is the value a run terminates with.
type FinalAnswer struct {
	Type  OutputType `json:"type"`
	Value any        `json:"value"`
}

// Text renders the answer as plain text.
func (a FinalAnswer) Text() string {
	switch v := a.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
