// Package nametemplate renders part identifiers from brace-delimited format
// templates such as "SCREW-{MATERIAL}-{THREAD}-{LENGTH}".
//
// Values are substituted verbatim. A value containing the "-" field separator
// still renders, but the resulting identifier can no longer be split back into
// its fields; keeping values normalized is up to the caller.
package nametemplate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedTemplate is matched by every *SyntaxError.
	ErrMalformedTemplate = errors.New("malformed template")
	// ErrMissingValue is matched by every *MissingValueError.
	ErrMissingValue = errors.New("missing template value")
	// ErrNoPlaceholders is returned by Validate for a template without fields.
	ErrNoPlaceholders = errors.New("template has no placeholders")
)

// SyntaxError describes a brace syntax problem at a byte offset.
type SyntaxError struct {
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("malformed template at offset %d: %s", e.Offset, e.Reason)
}

func (e *SyntaxError) Is(target error) bool {
	return target == ErrMalformedTemplate
}

// MissingValueError names the first placeholder that had no value.
type MissingValueError struct {
	Name string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("missing value for placeholder {%s}", e.Name)
}

func (e *MissingValueError) Is(target error) bool {
	return target == ErrMissingValue
}

// segment is either literal text or a placeholder name.
type segment struct {
	text        string
	placeholder bool
}

func parse(tmpl string) ([]segment, error) {
	var (
		segs  []segment
		start = 0
		open  = -1
	)
	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '{':
			if open >= 0 {
				return nil, &SyntaxError{Offset: i, Reason: "nested '{'"}
			}
			if i > start {
				segs = append(segs, segment{text: tmpl[start:i]})
			}
			open = i
		case '}':
			if open < 0 {
				return nil, &SyntaxError{Offset: i, Reason: "'}' without matching '{'"}
			}
			if i == open+1 {
				return nil, &SyntaxError{Offset: open, Reason: "empty placeholder"}
			}
			segs = append(segs, segment{text: tmpl[open+1 : i], placeholder: true})
			open = -1
			start = i + 1
		}
	}
	if open >= 0 {
		return nil, &SyntaxError{Offset: open, Reason: "unclosed '{'"}
	}
	if start < len(tmpl) {
		segs = append(segs, segment{text: tmpl[start:]})
	}
	return segs, nil
}

// Placeholders returns the placeholder names of tmpl in order of appearance.
// Repeated placeholders are reported once per occurrence.
func Placeholders(tmpl string) ([]string, error) {
	segs, err := parse(tmpl)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, s := range segs {
		if s.placeholder {
			names = append(names, s.text)
		}
	}
	return names, nil
}

// Validate checks that tmpl parses and has at least one placeholder.
func Validate(tmpl string) error {
	names, err := Placeholders(tmpl)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return ErrNoPlaceholders
	}
	return nil
}

// Render substitutes values into tmpl. The template is parsed in full before
// any substitution, so a syntax error anywhere wins over a missing value.
// Lookups are case-sensitive; values without a placeholder are ignored.
func Render(tmpl string, values map[string]string) (string, error) {
	segs, err := parse(tmpl)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(tmpl))
	for _, s := range segs {
		if !s.placeholder {
			b.WriteString(s.text)
			continue
		}
		v, ok := values[s.text]
		if !ok {
			return "", &MissingValueError{Name: s.text}
		}
		b.WriteString(v)
	}
	return b.String(), nil
}
