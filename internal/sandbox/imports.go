package sandbox

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	importLine = regexp.MustCompile(`^(\s*)import\s+(.+?)\s*$`)
	fromLine   = regexp.MustCompile(`^(\s*)from\s+([\w.]+)\s+import\s+(.+?)\s*$`)
	aliasPart  = regexp.MustCompile(`^([\w.]+)(?:\s+as\s+(\w+))?$`)
)

// rewriteImports turns Python import statements into Starlark load calls
// and returns the rewritten code with the modules referenced. Every module
// is checked against allowed before anything runs.
//
//	import m            -> load("m", m="module_object")
//	import m as a       -> load("m", a="module_object")
//	from m import x, y  -> load("m", "x", "y")
//	from m import x as s -> load("m", s="x")
func rewriteImports(code string, allowed []string) (string, error) {
	lines := strings.Split(code, "\n")
	quoted := quotedLines(lines)
	for i, line := range lines {
		if quoted[i] {
			continue
		}
		var (
			indent string
			stmts  []string
			err    error
		)
		switch {
		case fromLine.MatchString(line):
			m := fromLine.FindStringSubmatch(line)
			indent = m[1]
			stmts, err = rewriteFrom(m[2], m[3], allowed)
		case importLine.MatchString(line):
			m := importLine.FindStringSubmatch(line)
			indent = m[1]
			stmts, err = rewriteImport(m[2], allowed)
		default:
			continue
		}
		if err != nil {
			return "", err
		}
		if indent != "" {
			return "", fmt.Errorf("%w: line %d: imports are only supported at top level", ErrRuntimeScript, i+1)
		}
		lines[i] = strings.Join(stmts, "; ")
	}
	return strings.Join(lines, "\n"), nil
}

// quotedLines reports, for each line, whether it starts inside a
// triple-quoted string literal.
func quotedLines(lines []string) []bool {
	quoted := make([]bool, len(lines))
	open := ""
	for i, line := range lines {
		quoted[i] = open != ""
		for j := 0; j < len(line); j++ {
			c := line[j]
			if open != "" {
				switch {
				case c == '\\':
					j++
				case strings.HasPrefix(line[j:], open):
					j += len(open) - 1
					open = ""
				}
				continue
			}
			switch c {
			case '#':
				j = len(line)
			case '"', '\'':
				if triple := strings.Repeat(string(c), 3); strings.HasPrefix(line[j:], triple) {
					open = triple
					j += 2
					continue
				}
				for j++; j < len(line) && line[j] != c; j++ {
					if line[j] == '\\' {
						j++
					}
				}
			}
		}
	}
	return quoted
}

func rewriteImport(spec string, allowed []string) ([]string, error) {
	var out []string
	for part := range strings.SplitSeq(spec, ",") {
		m := aliasPart.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return nil, fmt.Errorf("%w: cannot parse import %q", ErrRuntimeScript, spec)
		}
		if err := checkModule(m[1], allowed); err != nil {
			return nil, err
		}
		name := m[2]
		if name == "" {
			name = m[1]
		}
		out = append(out, fmt.Sprintf("load(%s, %s=%q)", strconv.Quote(m[1]), name, moduleKey))
	}
	return out, nil
}

func rewriteFrom(module, names string, allowed []string) ([]string, error) {
	if err := checkModule(module, allowed); err != nil {
		return nil, err
	}
	names = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(names), "("), ")")
	if strings.TrimSpace(names) == "*" {
		return nil, fmt.Errorf("%w: wildcard imports are not supported", ErrRuntimeScript)
	}

	args := []string{strconv.Quote(module)}
	for part := range strings.SplitSeq(names, ",") {
		m := aliasPart.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil || strings.Contains(m[1], ".") {
			return nil, fmt.Errorf("%w: cannot parse import of %q from %s", ErrRuntimeScript, part, module)
		}
		if m[2] == "" {
			args = append(args, strconv.Quote(m[1]))
		} else {
			args = append(args, fmt.Sprintf("%s=%s", m[2], strconv.Quote(m[1])))
		}
	}
	return []string{"load(" + strings.Join(args, ", ") + ")"}, nil
}

func checkModule(name string, allowed []string) error {
	if !slices.Contains(allowed, name) || !KnownModule(name) {
		return fmt.Errorf("%w: import of %s is not allowed; authorized imports are %v", ErrImportNotAllowed, name, allowed)
	}
	return nil
}
