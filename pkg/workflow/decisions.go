package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/binnyhq/part-namer/pkg/nametemplate"
	"github.com/binnyhq/part-namer/pkg/proposal"
	"github.com/binnyhq/part-namer/pkg/registry"
)

var (
	// ErrConflictingEntry is returned by Approve when the code was committed
	// with different fields in the meantime. The proposal stays pending.
	ErrConflictingEntry = errors.New("code already committed with different fields")
	// ErrUnknownMaterial is returned by GenerateName for an uncommitted material.
	ErrUnknownMaterial = errors.New("material is not in the registry")
)

// materialPlaceholder is the template field checked against the materials
// registry by GenerateName.
const materialPlaceholder = "MATERIAL"

// Approve commits a pending proposal to its registry and marks it approved.
//
// The proposal log stays locked while the entry is appended, so no other
// decision on the same kind interleaves. If the code is already present with
// identical fields and no other approved proposal holds it, an earlier
// approval of this proposal got as far as the commit before failing; Approve
// then only completes the status change. Any other holder of the code yields
// ErrConflictingEntry and the proposal is left pending for the reviewer to
// edit or reject.
func (e *Engine) Approve(ctx context.Context, kind registry.Kind, id string) (registry.Entry, error) {
	q, err := e.queue(kind)
	if err != nil {
		return nil, err
	}
	s, err := e.store(kind)
	if err != nil {
		return nil, err
	}

	var (
		committed registry.Entry
		outcome   string
	)
	p, err := q.Resolve(ctx, id, func(p proposal.Proposal, log []proposal.Proposal) (proposal.Status, error) {
		if err := validateProposal(p); err != nil {
			return "", err
		}
		entry := p.Fields.Entry()

		err := s.Append(ctx, entry)
		switch {
		case err == nil:
			committed, outcome = entry, OutcomeCommitted
			return proposal.StatusApproved, nil
		case !errors.Is(err, registry.ErrDuplicateCode):
			return "", err
		}

		existing, err := s.Lookup(ctx, entry.Key())
		if err != nil {
			return "", err
		}
		if existing != entry {
			return "", fmt.Errorf("%s %q: %w", kind, entry.Key(), ErrConflictingEntry)
		}
		if holder := approvedHolder(log, p); holder != "" {
			return "", fmt.Errorf("%s %q approved in %s: %w", kind, entry.Key(), holder, ErrConflictingEntry)
		}
		committed, outcome = existing, OutcomeAlreadyCommitted
		return proposal.StatusApproved, nil
	})
	if err != nil {
		if errors.Is(err, ErrConflictingEntry) {
			e.logger.Warn("approval conflicts with committed entry", "kind", kind, "proposal", id, "code", p.Code())
			e.record(ctx, Event{Kind: kind, ProposalID: id, Code: p.Code(), Action: ActionApprove, Outcome: OutcomeConflict, Detail: err.Error()})
		}
		return nil, err
	}

	e.logger.Info("proposal approved", "kind", kind, "proposal", id, "code", committed.Key(), "outcome", outcome)
	e.record(ctx, Event{Kind: kind, ProposalID: id, Code: committed.Key(), Action: ActionApprove, Outcome: outcome})
	return committed, nil
}

// approvedHolder returns the ID of another approved proposal for p's code.
func approvedHolder(log []proposal.Proposal, p proposal.Proposal) string {
	for _, other := range log {
		if other.ID != p.ID && other.Status == proposal.StatusApproved && other.Code() == p.Code() {
			return other.ID
		}
	}
	return ""
}

// Reject marks a pending proposal rejected. The registry is not touched.
func (e *Engine) Reject(ctx context.Context, kind registry.Kind, id string) error {
	q, err := e.queue(kind)
	if err != nil {
		return err
	}
	p, err := q.Resolve(ctx, id, func(proposal.Proposal, []proposal.Proposal) (proposal.Status, error) {
		return proposal.StatusRejected, nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("proposal rejected", "kind", kind, "proposal", id, "code", p.Code())
	e.record(ctx, Event{Kind: kind, ProposalID: id, Code: p.Code(), Action: ActionReject, Outcome: OutcomeRejected})
	return nil
}

// Edit revises a pending proposal in place. The merged proposal must pass
// the same checks as Propose.
func (e *Engine) Edit(ctx context.Context, kind registry.Kind, id string, patch proposal.Patch) (proposal.Proposal, error) {
	q, err := e.queue(kind)
	if err != nil {
		return proposal.Proposal{}, err
	}
	p, err := q.Update(ctx, id, normalizePatch(patch))
	if err != nil {
		if errors.Is(err, proposal.ErrPatchField) {
			return proposal.Proposal{}, &FieldError{Field: "patch", Reason: err.Error()}
		}
		return proposal.Proposal{}, err
	}

	e.logger.Info("proposal edited", "kind", kind, "proposal", id, "code", p.Code())
	e.record(ctx, Event{Kind: kind, ProposalID: id, Code: p.Code(), Action: ActionEdit, Outcome: OutcomeUpdated})
	return p, nil
}

// Defer records that a reviewer looked at a pending proposal and postponed
// the decision. The proposal is returned unchanged.
func (e *Engine) Defer(ctx context.Context, kind registry.Kind, id string) (proposal.Proposal, error) {
	q, err := e.queue(kind)
	if err != nil {
		return proposal.Proposal{}, err
	}
	p, err := q.Resolve(ctx, id, func(proposal.Proposal, []proposal.Proposal) (proposal.Status, error) {
		return proposal.StatusPending, nil
	})
	if err != nil {
		return proposal.Proposal{}, err
	}

	e.logger.Debug("proposal deferred", "kind", kind, "proposal", id)
	e.record(ctx, Event{Kind: kind, ProposalID: id, Code: p.Code(), Action: ActionDefer, Outcome: OutcomeDeferred})
	return p, nil
}

// GenerateName renders the identifier for an approved prefix. When the
// prefix's template uses {MATERIAL}, the supplied material must be committed
// too; a MATERIAL value the template never references is ignored.
func (e *Engine) GenerateName(ctx context.Context, prefix string, values map[string]string) (string, error) {
	entry, err := e.LookupEntry(ctx, registry.KindPrefix, prefix)
	if err != nil {
		return "", err
	}
	pe, ok := entry.(registry.PrefixEntry)
	if !ok {
		return "", fmt.Errorf("workflow: unexpected entry type %T", entry)
	}

	names, err := nametemplate.Placeholders(pe.FormatTemplate)
	if err != nil {
		return "", err
	}
	if material, ok := values[materialPlaceholder]; ok && slices.Contains(names, materialPlaceholder) {
		found, err := e.registries[registry.KindMaterial].Exists(ctx, material)
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("%q: %w", material, ErrUnknownMaterial)
		}
	}

	return nametemplate.Render(pe.FormatTemplate, values)
}
