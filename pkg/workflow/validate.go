package workflow

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/binnyhq/part-namer/pkg/nametemplate"
	"github.com/binnyhq/part-namer/pkg/proposal"
)

var (
	prefixCodePattern   = regexp.MustCompile(`^[A-Z]{1,5}$`)
	materialCodePattern = regexp.MustCompile(`^[A-Z0-9]+$`)
)

// ErrInvalidField is matched by every *FieldError.
var ErrInvalidField = errors.New("invalid field")

// FieldError reports a proposal field that fails its shape constraint.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidField
}

// ValidateFields checks the kind-specific fields of a proposal.
func ValidateFields(f proposal.Fields) error {
	switch f := f.(type) {
	case proposal.PrefixFields:
		if !prefixCodePattern.MatchString(f.Prefix) {
			return &FieldError{Field: "prefix", Reason: fmt.Sprintf("%q must be 1 to 5 uppercase letters", f.Prefix)}
		}
		if err := checkLine("description", f.Description); err != nil {
			return err
		}
		return checkTemplate(f.FormatTemplate)
	case proposal.MaterialFields:
		if !materialCodePattern.MatchString(f.MaterialCode) {
			return &FieldError{Field: "material_code", Reason: fmt.Sprintf("%q must be uppercase letters and digits", f.MaterialCode)}
		}
		return checkLine("description", f.Description)
	case nil:
		return &FieldError{Field: "fields", Reason: "missing"}
	default:
		return fmt.Errorf("workflow: unexpected fields type %T", f)
	}
}

func validateProposal(p proposal.Proposal) error {
	if err := ValidateFields(p.Fields); err != nil {
		return err
	}
	return checkLine("reasoning", p.Reasoning)
}

func checkLine(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &FieldError{Field: field, Reason: "must not be empty"}
	}
	if strings.ContainsAny(v, "\r\n") {
		return &FieldError{Field: field, Reason: "must be a single line"}
	}
	return nil
}

func checkTemplate(tmpl string) error {
	if strings.ContainsAny(tmpl, "`\r\n") {
		return &FieldError{Field: "format_template", Reason: "must not contain backticks or line breaks"}
	}
	if err := nametemplate.Validate(tmpl); err != nil {
		return &FieldError{Field: "format_template", Reason: err.Error()}
	}
	return nil
}

// normalizeFields trims surrounding whitespace from every field.
func normalizeFields(f proposal.Fields) proposal.Fields {
	switch f := f.(type) {
	case proposal.PrefixFields:
		return proposal.PrefixFields{
			Prefix:         strings.TrimSpace(f.Prefix),
			Description:    strings.TrimSpace(f.Description),
			FormatTemplate: strings.TrimSpace(f.FormatTemplate),
		}
	case proposal.MaterialFields:
		return proposal.MaterialFields{
			MaterialCode: strings.TrimSpace(f.MaterialCode),
			Description:  strings.TrimSpace(f.Description),
		}
	default:
		return f
	}
}

func normalizePatch(pt proposal.Patch) proposal.Patch {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		s := strings.TrimSpace(*v)
		return &s
	}
	return proposal.Patch{
		Prefix:         trim(pt.Prefix),
		MaterialCode:   trim(pt.MaterialCode),
		Description:    trim(pt.Description),
		FormatTemplate: trim(pt.FormatTemplate),
		Reasoning:      trim(pt.Reasoning),
	}
}
