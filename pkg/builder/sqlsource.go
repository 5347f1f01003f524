package builder

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// maxIncludeDepth bounds nested <include/> expansion.
const maxIncludeDepth = 16

var (
	includePattern  = regexp.MustCompile(`<include\s+refid\s*=\s*"([^"]+)"\s*/>`)
	variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// ErrIncludeCycle is returned when SQL fragments include each other.
var ErrIncludeCycle = errors.New("builder: circular <include/> reference")

// Substitute replaces ${name} and ${name:default} with variables. Unknown
// names without a default are left untouched.
func Substitute(text string, vars map[string]string) string {
	if !strings.Contains(text, "${") {
		return text
	}
	return variablePattern.ReplaceAllStringFunc(text, func(tok string) string {
		expr := tok[2 : len(tok)-1]
		name, def, hasDefault := strings.Cut(expr, ":")
		if v, ok := vars[strings.TrimSpace(name)]; ok {
			return v
		}
		if hasDefault {
			return def
		}
		return tok
	})
}

// expandIncludes replaces every <include refid="x"/> with the text of the
// referenced fragment. A missing fragment is incomplete.
func (a *assistant) expandIncludes(text string) (string, error) {
	return a.expand(text, nil)
}

func (a *assistant) expand(text string, stack []string) (string, error) {
	if len(stack) > maxIncludeDepth {
		return "", fmt.Errorf("%w: %s", ErrIncludeCycle, strings.Join(stack, " -> "))
	}
	var firstErr error
	out := includePattern.ReplaceAllStringFunc(text, func(tok string) string {
		if firstErr != nil {
			return tok
		}
		ref := includePattern.FindStringSubmatch(tok)[1]
		id, err := a.applyNamespace(Substitute(ref, a.cfg.Variables), true)
		if err != nil {
			firstErr = err
			return tok
		}
		for _, seen := range stack {
			if seen == id {
				firstErr = fmt.Errorf("%w: %s -> %s", ErrIncludeCycle, strings.Join(stack, " -> "), id)
				return tok
			}
		}
		frag, ok := a.cfg.Fragment(id)
		if !ok {
			firstErr = &missingError{ref: id, what: "sql fragment"}
			return tok
		}
		body, err := a.expand(Substitute(frag.Body, a.cfg.Variables), append(stack, id))
		if err != nil {
			firstErr = err
			return tok
		}
		return strings.TrimSpace(body)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// parseSQL turns statement text into driver-ready SQL plus parameter mappings.
func (a *assistant) parseSQL(text string, paramType reflect.Type) (*core.SQLSource, error) {
	expanded, err := a.expandIncludes(Substitute(text, a.cfg.Variables))
	if err != nil {
		return nil, err
	}

	src := &core.SQLSource{}
	var b strings.Builder
	rest := expanded
	for {
		start := strings.Index(rest, "#{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return nil, fmt.Errorf("builder: unterminated parameter placeholder in %q", expanded)
		}
		b.WriteString(rest[:start])
		b.WriteString("?")
		pm, err := a.parseParameter(rest[start+2:start+end], paramType)
		if err != nil {
			return nil, err
		}
		src.Params = append(src.Params, pm)
		rest = rest[start+end+1:]
	}
	if a.cfg.Settings.ShrinkWhitespace {
		src.Text = strings.Join(strings.Fields(b.String()), " ")
	} else {
		src.Text = strings.TrimSpace(b.String())
	}
	return src, nil
}

// parseParameter parses "prop,wire_type=VARCHAR,marshaller=Alias,value_type=int".
func (a *assistant) parseParameter(content string, paramType reflect.Type) (core.ParameterMapping, error) {
	parts := strings.Split(content, ",")
	pm := core.ParameterMapping{Property: strings.TrimSpace(parts[0]), Wire: core.WireAny}
	if pm.Property == "" {
		return pm, fmt.Errorf("builder: parameter placeholder #{%s} has no property", content)
	}

	var marshallerName string
	for _, opt := range parts[1:] {
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			return pm, fmt.Errorf("builder: invalid parameter option %q in #{%s}", opt, content)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "wire_type":
			w, err := parseWire(value)
			if err != nil {
				return pm, err
			}
			pm.Wire = w
		case "value_type":
			t, err := a.cfg.ResolveType(value)
			if err != nil {
				return pm, err
			}
			pm.ValueType = t
		case "marshaller":
			marshallerName = value
		default:
			return pm, fmt.Errorf("builder: unknown parameter option %q in #{%s}", key, content)
		}
	}

	if pm.ValueType == nil {
		pm.ValueType = a.parameterPropertyType(paramType, pm.Property)
	}
	if marshallerName != "" {
		m, err := a.marshaller(marshallerName, pm.ValueType)
		if err != nil {
			return pm, err
		}
		pm.Marshaller = m
	}
	return pm, nil
}

// parameterPropertyType derives a placeholder type from the parameter type.
// Maps and unknown parameter types leave it to runtime dispatch.
func (a *assistant) parameterPropertyType(paramType reflect.Type, property string) reflect.Type {
	if paramType == nil {
		return nil
	}
	if a.cfg.Marshallers().Has(paramType, core.WireAny) && paramType.Kind() != reflect.Interface {
		return paramType
	}
	if paramType.Kind() == reflect.Map {
		return nil
	}
	t, err := a.cfg.Accessor().PropertyType(paramType, property)
	if err != nil {
		return nil
	}
	return t
}
