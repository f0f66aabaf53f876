package api

import (
	"fmt"
	"time"

	"github.com/binnyhq/part-namer/pkg/proposal"
	"github.com/binnyhq/part-namer/pkg/registry"
	"github.com/binnyhq/part-namer/pkg/workflow"
)

// EntryView is the wire form of a registry entry.
type EntryView struct {
	Kind           registry.Kind `json:"kind" yaml:"kind"`
	Code           string        `json:"code" yaml:"code"`
	Description    string        `json:"description" yaml:"description"`
	FormatTemplate string        `json:"format_template,omitempty" yaml:"format_template,omitempty"`
}

// NewEntryView converts a registry entry.
func NewEntryView(e registry.Entry) EntryView {
	switch e := e.(type) {
	case registry.PrefixEntry:
		return EntryView{Kind: e.Kind(), Code: e.Code, Description: e.Description, FormatTemplate: e.FormatTemplate}
	case registry.MaterialEntry:
		return EntryView{Kind: e.Kind(), Code: e.Code, Description: e.Description}
	default:
		panic(fmt.Sprintf("api: unexpected entry type %T", e))
	}
}

// NewEntryViews converts a list of entries.
func NewEntryViews(entries []registry.Entry) []EntryView {
	out := make([]EntryView, len(entries))
	for i, e := range entries {
		out[i] = NewEntryView(e)
	}
	return out
}

// ProposalView is the wire form of a proposal. Kind-specific fields are
// flattened, as in the proposal log.
type ProposalView struct {
	ID             string          `json:"proposal_id" yaml:"proposal_id"`
	Kind           registry.Kind   `json:"kind" yaml:"kind"`
	Status         proposal.Status `json:"status" yaml:"status"`
	CreatedAt      time.Time       `json:"created_at" yaml:"created_at"`
	DecidedAt      *time.Time      `json:"decided_at,omitempty" yaml:"decided_at,omitempty"`
	Reasoning      string          `json:"reasoning" yaml:"reasoning"`
	Prefix         string          `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	MaterialCode   string          `json:"material_code,omitempty" yaml:"material_code,omitempty"`
	Description    string          `json:"description" yaml:"description"`
	FormatTemplate string          `json:"format_template,omitempty" yaml:"format_template,omitempty"`
}

// NewProposalView converts a proposal.
func NewProposalView(p proposal.Proposal) ProposalView {
	v := ProposalView{
		ID:        p.ID,
		Kind:      p.Kind(),
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
		Reasoning: p.Reasoning,
	}
	if !p.DecidedAt.IsZero() {
		t := p.DecidedAt
		v.DecidedAt = &t
	}
	switch f := p.Fields.(type) {
	case proposal.PrefixFields:
		v.Prefix = f.Prefix
		v.Description = f.Description
		v.FormatTemplate = f.FormatTemplate
	case proposal.MaterialFields:
		v.MaterialCode = f.MaterialCode
		v.Description = f.Description
	}
	return v
}

// NewProposalViews converts a list of proposals.
func NewProposalViews(ps []proposal.Proposal) []ProposalView {
	out := make([]ProposalView, len(ps))
	for i, p := range ps {
		out[i] = NewProposalView(p)
	}
	return out
}

// DecisionView is the wire form of workflow.Decision.
type DecisionView struct {
	Result    workflow.DecisionResult `json:"result" yaml:"result"`
	Entry     *EntryView              `json:"entry,omitempty" yaml:"entry,omitempty"`
	Candidate *ProposalRequest        `json:"candidate,omitempty" yaml:"candidate,omitempty"`
}

// NewDecisionView converts a decision.
func NewDecisionView(d workflow.Decision) DecisionView {
	v := DecisionView{Result: d.Result}
	if d.Entry != nil {
		e := NewEntryView(d.Entry)
		v.Entry = &e
	}
	if d.Candidate != nil {
		c := newProposalRequest(d.Candidate)
		v.Candidate = &c
	}
	return v
}

// ProposalRequest is the body of a create-proposal call. Which code field is
// read depends on the kind in the path.
type ProposalRequest struct {
	Prefix         string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	MaterialCode   string `json:"material_code,omitempty" yaml:"material_code,omitempty"`
	Description    string `json:"description" yaml:"description"`
	FormatTemplate string `json:"format_template,omitempty" yaml:"format_template,omitempty"`
	Reasoning      string `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// Fields returns the proposal fields for kind.
func (r ProposalRequest) Fields(kind registry.Kind) (proposal.Fields, error) {
	switch kind {
	case registry.KindPrefix:
		return proposal.PrefixFields{Prefix: r.Prefix, Description: r.Description, FormatTemplate: r.FormatTemplate}, nil
	case registry.KindMaterial:
		return proposal.MaterialFields{MaterialCode: r.MaterialCode, Description: r.Description}, nil
	default:
		return nil, fmt.Errorf("%w: %q", registry.ErrUnknownKind, kind)
	}
}

func newProposalRequest(f proposal.Fields) ProposalRequest {
	switch f := f.(type) {
	case proposal.PrefixFields:
		return ProposalRequest{Prefix: f.Prefix, Description: f.Description, FormatTemplate: f.FormatTemplate}
	case proposal.MaterialFields:
		return ProposalRequest{MaterialCode: f.MaterialCode, Description: f.Description}
	default:
		return ProposalRequest{}
	}
}
