package tool

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReservedNames cannot be used as tool names because the script sandbox
// binds them itself.
var ReservedNames = []string{
	"final_answer", "print", "load",
	"None", "True", "False",
	"abs", "all", "any", "bool", "bytes", "dict", "dir", "enumerate", "fail",
	"float", "getattr", "hasattr", "hash", "int", "len", "list", "max", "min",
	"range", "repr", "reversed", "set", "sorted", "str", "tuple", "type", "zip",
}

// CheckSpec verifies that s is well formed: a valid, unreserved identifier
// as name, a known output type and typed, uniquely named inputs.
func CheckSpec(s Spec) error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return ErrEmptyToolName
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q is not an identifier", ErrInvalidToolName, name)
	}
	if slices.Contains(ReservedNames, name) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidToolName, name)
	}
	if !s.OutputType.Valid() {
		return fmt.Errorf("%w: %s: unknown output type %q", ErrInvalidSpec, name, s.OutputType)
	}

	seen := make(map[string]struct{}, len(s.Inputs))
	for _, in := range s.Inputs {
		if !identifierPattern.MatchString(in.Name) {
			return fmt.Errorf("%w: %s: bad input name %q", ErrInvalidSpec, name, in.Name)
		}
		if _, dup := seen[in.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate input %q", ErrInvalidSpec, name, in.Name)
		}
		seen[in.Name] = struct{}{}
		if !knownInputType(in.Type) {
			return fmt.Errorf("%w: %s: input %q has unknown type %q", ErrInvalidSpec, name, in.Name, in.Type)
		}
	}
	return nil
}

func knownInputType(t InputType) bool {
	switch t {
	case InputString, InputInteger, InputNumber, InputBoolean, InputArray, InputObject, InputAny:
		return true
	}
	return false
}

// Validate checks args against the inputs declared by s. Unknown names,
// missing non-nullable inputs and type mismatches yield ErrInvalidArgument.
func Validate(s Spec, args Args) error {
	for name := range args {
		if _, ok := s.Input(name); !ok {
			return fmt.Errorf("%w: %s got unexpected argument %q", ErrInvalidArgument, s.Name, name)
		}
	}

	for _, in := range s.Inputs {
		v, present := args[in.Name]
		if !present || v == nil {
			if in.Nullable {
				continue
			}
			return fmt.Errorf("%w: %s is missing required argument %q", ErrInvalidArgument, s.Name, in.Name)
		}
		if !matchesType(in.Type, v) {
			return fmt.Errorf("%w: %s argument %q must be %s, got %T", ErrInvalidArgument, s.Name, in.Name, in.Type, v)
		}
	}
	return nil
}

func matchesType(t InputType, v any) bool {
	switch t {
	case InputAny:
		return true
	case InputString:
		_, ok := v.(string)
		return ok
	case InputBoolean:
		_, ok := v.(bool)
		return ok
	case InputInteger:
		switch v.(type) {
		case int, int64:
			return true
		}
	case InputNumber:
		switch v.(type) {
		case int, int64, float64:
			return true
		}
	case InputArray:
		_, ok := v.([]any)
		return ok
	case InputObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}
