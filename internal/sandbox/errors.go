package sandbox

import "errors"

var (
	// ErrImportNotAllowed is returned when code imports a module outside the
	// authorized list.
	ErrImportNotAllowed = errors.New("import not allowed")

	// ErrRuntimeScript covers every script failure not raised by a tool:
	// syntax errors, evaluation errors and exhausted step or time budgets.
	ErrRuntimeScript = errors.New("script error")

	// ErrShadowedName is returned when code assigns to a tool name or to
	// final_answer.
	ErrShadowedName = errors.New("reserved name reassigned")

	// errFinalAnswer aborts execution once final_answer has been called.
	errFinalAnswer = errors.New("final answer")
)
