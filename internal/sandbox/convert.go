package sandbox

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/kurisu/squadagent/internal/tool"
)

// fileValue is the script-side value of an image or audio tool result.
type fileValue struct {
	typ  tool.OutputType
	path string
	mime string
}

var _ starlark.Value = fileValue{}

func (f fileValue) String() string        { return fmt.Sprintf("<%s %s>", f.typ, f.path) }
func (f fileValue) Type() string          { return string(f.typ) }
func (f fileValue) Freeze()               {}
func (f fileValue) Truth() starlark.Bool  { return f.path != "" }
func (f fileValue) Hash() (uint32, error) { return starlark.String(f.path).Hash() }

// Attr exposes .path and .mime_type to scripts.
func (f fileValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "path":
		return starlark.String(f.path), nil
	case "mime_type":
		return starlark.String(f.mime), nil
	}
	return nil, nil
}

func (f fileValue) AttrNames() []string { return []string{"mime_type", "path"} }

func fromResult(r tool.Result) starlark.Value {
	if r.Type == tool.OutputText || r.Type == "" {
		return starlark.String(r.Text)
	}
	return fileValue{typ: r.Type, path: r.Path, mime: r.MIMEType}
}

// toGo converts a Starlark value to string, int64, float64, bool, nil,
// []any or map[string]any. Anything else becomes its string form.
func toGo(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i
		}
		return float64(x.Float())
	case starlark.Float:
		return float64(x)
	case starlark.String:
		return string(x)
	case fileValue:
		return x.path
	case *starlark.List:
		return iterToGo(x)
	case starlark.Tuple:
		return iterToGo(x)
	case *starlark.Set:
		return iterToGo(x)
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				k = item[0].String()
			}
			out[k] = toGo(item[1])
		}
		return out
	}
	return v.String()
}

func iterToGo(it starlark.Iterable) []any {
	out := []any{}
	iter := it.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		out = append(out, toGo(v))
	}
	return out
}

// display renders v the way Python's str() would.
func display(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}
