// Package template provides placeholder extraction and substitution for
// command response templates.
//
// Templates reference variables as ${name}. Rendering fails if the
// template references a variable for which no binding is supplied, so a
// response is only ever produced with every placeholder resolved.
package template

import (
	"errors"
	"fmt"
	"io"

	"github.com/valyala/fasttemplate"
)

const startTag, endTag = "${", "}"

// ErrUnbound indicates that a template references a variable with no
// binding. It must be checked using [errors.Is].
var ErrUnbound = errors.New("unbound template variable")

// Keys returns the set of variable names a template body references.
// The result is empty (possibly nil) for a template with no placeholders.
func Keys(body string) (map[string]bool, error) {
	t, err := fasttemplate.NewTemplate(body, startTag, endTag)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse template: %w", err)
	}
	var keys map[string]bool
	t.ExecuteFunc(io.Discard, func(w io.Writer, tag string) (int, error) {
		if keys == nil {
			keys = make(map[string]bool)
		}
		keys[tag] = true
		return 0, nil
	})
	return keys, nil
}

// Render substitutes vars into a template body. Every placeholder in the
// body must have a binding in vars; a missing binding is reported as an
// error wrapping [ErrUnbound].
func Render(body string, vars map[string]string) (string, error) {
	t, err := fasttemplate.NewTemplate(body, startTag, endTag)
	if err != nil {
		return "", fmt.Errorf("couldn't parse template: %w", err)
	}
	r, err := t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		v, ok := vars[tag]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnbound, tag)
		}
		return io.WriteString(w, v)
	})
	if err != nil {
		return "", fmt.Errorf("couldn't render template: %w", err)
	}
	return r, nil
}
