package sandbox

import (
	"fmt"
	"math/rand/v2"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// DefaultAuthorizedImports are the modules scripts may import when the
// configuration does not say otherwise.
var DefaultAuthorizedImports = []string{"json", "math", "random", "time"}

// moduleKey is the load binding that yields the module itself rather than
// one of its members. Member names never collide with it.
const moduleKey = "module_object"

// modules lists every module the sandbox can provide. Authorization is
// decided per execution.
var modules = map[string]*starlarkstruct.Module{
	"math":   math.Module,
	"json":   json.Module,
	"time":   time.Module,
	"random": randomModule,
}

// KnownModule reports whether the sandbox can provide the named module.
func KnownModule(name string) bool {
	_, ok := modules[name]
	return ok
}

var randomModule = &starlarkstruct.Module{
	Name: "random",
	Members: starlark.StringDict{
		"random":  starlark.NewBuiltin("random.random", randomFloat),
		"uniform": starlark.NewBuiltin("random.uniform", randomUniform),
		"randint": starlark.NewBuiltin("random.randint", randomInt),
		"choice":  starlark.NewBuiltin("random.choice", randomChoice),
	},
}

func randomFloat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.Float(rand.Float64()), nil
}

func randomUniform(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var lo, hi starlark.Float
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &lo, &hi); err != nil {
		return nil, err
	}
	return lo + starlark.Float(rand.Float64())*(hi-lo), nil
}

func randomInt(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var lo, hi int64
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &lo, &hi); err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, fmt.Errorf("%s: empty range [%d, %d]", b.Name(), lo, hi)
	}
	// The span is computed in uint64: hi-lo+1 overflows int64 for wide ranges.
	span := uint64(hi) - uint64(lo)
	if span == ^uint64(0) {
		return starlark.MakeInt64(int64(rand.Uint64())), nil
	}
	return starlark.MakeInt64(lo + int64(rand.Uint64N(span+1))), nil
}

func randomChoice(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Indexable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &seq); err != nil {
		return nil, err
	}
	if seq.Len() == 0 {
		return nil, fmt.Errorf("%s: empty sequence", b.Name())
	}
	return seq.Index(rand.IntN(seq.Len())), nil
}
