package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names one of the two registries.
type Kind string

const (
	KindPrefix   Kind = "prefix"
	KindMaterial Kind = "material"
)

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("unknown registry kind")

// Kinds lists every registry kind in a stable order.
var Kinds = []Kind{KindPrefix, KindMaterial}

// ParseKind accepts "prefix", "material" and their plurals, in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prefix", "prefixes":
		return KindPrefix, nil
	case "material", "materials":
		return KindMaterial, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// title is the level-1 heading written when a registry document is created.
func (k Kind) title() string {
	if k == KindPrefix {
		return "Part Prefixes"
	}
	return "Materials"
}

// Entry is a committed registry record. The only implementations are
// PrefixEntry and MaterialEntry; both are comparable, and == is a full-field
// match.
type Entry interface {
	Kind() Kind
	// Key is the entry's unique code.
	Key() string
	isEntry()
}

// PrefixEntry is an approved part-type prefix.
type PrefixEntry struct {
	Code           string `json:"code" yaml:"code"`
	Description    string `json:"description" yaml:"description"`
	FormatTemplate string `json:"format_template" yaml:"format_template"`
}

func (PrefixEntry) Kind() Kind    { return KindPrefix }
func (e PrefixEntry) Key() string { return e.Code }
func (PrefixEntry) isEntry()      {}

// MaterialEntry is an approved material code.
type MaterialEntry struct {
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description" yaml:"description"`
}

func (MaterialEntry) Kind() Kind    { return KindMaterial }
func (e MaterialEntry) Key() string { return e.Code }
func (MaterialEntry) isEntry()      {}

// Description returns the entry's description.
func Description(e Entry) string {
	switch e := e.(type) {
	case PrefixEntry:
		return e.Description
	case MaterialEntry:
		return e.Description
	default:
		panic(fmt.Sprintf("registry: unexpected entry type %T", e))
	}
}
