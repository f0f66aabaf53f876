package proposal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/binnyhq/part-namer/pkg/registry"
)

// Fields carries the kind-specific, editable part of a proposal. The only
// implementations are PrefixFields and MaterialFields.
type Fields interface {
	Kind() registry.Kind
	// Code is the candidate registry code.
	Code() string
	// Entry builds the registry entry committed on approval.
	Entry() registry.Entry
	isFields()
}

// PrefixFields proposes a new part-type prefix.
type PrefixFields struct {
	Prefix         string `json:"prefix" yaml:"prefix"`
	Description    string `json:"description" yaml:"description"`
	FormatTemplate string `json:"format_template" yaml:"format_template"`
}

func (PrefixFields) Kind() registry.Kind { return registry.KindPrefix }
func (f PrefixFields) Code() string      { return f.Prefix }
func (PrefixFields) isFields()           {}

func (f PrefixFields) Entry() registry.Entry {
	return registry.PrefixEntry{Code: f.Prefix, Description: f.Description, FormatTemplate: f.FormatTemplate}
}

// MaterialFields proposes a new material code.
type MaterialFields struct {
	MaterialCode string `json:"material_code" yaml:"material_code"`
	Description  string `json:"description" yaml:"description"`
}

func (MaterialFields) Kind() registry.Kind { return registry.KindMaterial }
func (f MaterialFields) Code() string      { return f.MaterialCode }
func (MaterialFields) isFields()           {}

func (f MaterialFields) Entry() registry.Entry {
	return registry.MaterialEntry{Code: f.MaterialCode, Description: f.Description}
}

// Proposal is one request to add a registry entry.
type Proposal struct {
	ID        string
	CreatedAt time.Time
	// DecidedAt is zero while the proposal is pending.
	DecidedAt time.Time
	Status    Status
	Reasoning string
	Fields    Fields
}

// Kind returns the registry kind the proposal targets.
func (p Proposal) Kind() registry.Kind {
	return p.Fields.Kind()
}

// Code returns the candidate code.
func (p Proposal) Code() string {
	return p.Fields.Code()
}

// Patch lists the fields an edit replaces. Nil fields are left alone. Prefix
// and FormatTemplate apply only to prefix proposals, MaterialCode only to
// material proposals.
type Patch struct {
	Prefix         *string `json:"prefix,omitempty"`
	MaterialCode   *string `json:"material_code,omitempty"`
	Description    *string `json:"description,omitempty"`
	FormatTemplate *string `json:"format_template,omitempty"`
	Reasoning      *string `json:"reasoning,omitempty"`
}

// ErrPatchField is returned when a patch sets a field the proposal's kind
// does not have.
var ErrPatchField = errors.New("field does not apply to this proposal kind")

// IsEmpty reports whether the patch changes nothing.
func (pt Patch) IsEmpty() bool {
	return pt == Patch{}
}

// apply returns a copy of p with the patch merged in.
func (pt Patch) apply(p Proposal) (Proposal, error) {
	switch f := p.Fields.(type) {
	case PrefixFields:
		if pt.MaterialCode != nil {
			return p, fmt.Errorf("%w: material_code on %s proposal", ErrPatchField, f.Kind())
		}
		setIf(&f.Prefix, pt.Prefix)
		setIf(&f.Description, pt.Description)
		setIf(&f.FormatTemplate, pt.FormatTemplate)
		p.Fields = f
	case MaterialFields:
		if pt.Prefix != nil || pt.FormatTemplate != nil {
			return p, fmt.Errorf("%w: prefix/format_template on %s proposal", ErrPatchField, f.Kind())
		}
		setIf(&f.MaterialCode, pt.MaterialCode)
		setIf(&f.Description, pt.Description)
		p.Fields = f
	default:
		return p, fmt.Errorf("proposal: unexpected fields type %T", f)
	}
	setIf(&p.Reasoning, pt.Reasoning)
	return p, nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// record is the JSON-lines representation of a proposal. Kind fields are
// flattened into the record, as earlier versions wrote them.
type record struct {
	ProposalID     string  `json:"proposal_id"`
	CreatedAt      string  `json:"created_at,omitempty"`
	Timestamp      string  `json:"timestamp,omitempty"`
	Status         Status  `json:"status,omitempty"`
	Reasoning      string  `json:"reasoning"`
	DecidedAt      string  `json:"decided_at,omitempty"`
	Prefix         *string `json:"prefix,omitempty"`
	MaterialCode   *string `json:"material_code,omitempty"`
	Description    string  `json:"description"`
	FormatTemplate *string `json:"format_template,omitempty"`
}

// legacyTimeLayout matches Python's naive datetime.isoformat().
const legacyTimeLayout = "2006-01-02T15:04:05.999999999"

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(legacyTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeRecord(p Proposal) ([]byte, error) {
	rec := record{
		ProposalID: p.ID,
		CreatedAt:  formatTime(p.CreatedAt),
		Status:     p.Status,
		Reasoning:  p.Reasoning,
		DecidedAt:  formatTime(p.DecidedAt),
	}
	switch f := p.Fields.(type) {
	case PrefixFields:
		rec.Prefix = &f.Prefix
		rec.Description = f.Description
		rec.FormatTemplate = &f.FormatTemplate
	case MaterialFields:
		rec.MaterialCode = &f.MaterialCode
		rec.Description = f.Description
	default:
		return nil, fmt.Errorf("proposal %s: unexpected fields type %T", p.ID, f)
	}
	return json.Marshal(rec)
}

func decodeRecord(kind registry.Kind, line []byte) (Proposal, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Proposal{}, err
	}
	if strings.TrimSpace(rec.ProposalID) == "" {
		return Proposal{}, errors.New("missing proposal_id")
	}

	p := Proposal{
		ID:        rec.ProposalID,
		Status:    rec.Status,
		Reasoning: rec.Reasoning,
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if _, err := ParseStatus(string(p.Status)); err != nil {
		return Proposal{}, err
	}

	created := rec.CreatedAt
	if created == "" {
		created = rec.Timestamp
	}
	if created != "" {
		t, err := parseTime(created)
		if err != nil {
			return Proposal{}, fmt.Errorf("bad created_at: %w", err)
		}
		p.CreatedAt = t
	}
	if rec.DecidedAt != "" {
		t, err := parseTime(rec.DecidedAt)
		if err != nil {
			return Proposal{}, fmt.Errorf("bad decided_at: %w", err)
		}
		p.DecidedAt = t
	}

	switch kind {
	case registry.KindPrefix:
		if rec.Prefix == nil {
			return Proposal{}, errors.New("missing prefix")
		}
		f := PrefixFields{Prefix: *rec.Prefix, Description: rec.Description}
		if rec.FormatTemplate != nil {
			f.FormatTemplate = *rec.FormatTemplate
		}
		p.Fields = f
	case registry.KindMaterial:
		if rec.MaterialCode == nil {
			return Proposal{}, errors.New("missing material_code")
		}
		p.Fields = MaterialFields{MaterialCode: *rec.MaterialCode, Description: rec.Description}
	default:
		return Proposal{}, fmt.Errorf("%w: %q", registry.ErrUnknownKind, kind)
	}
	return p, nil
}
