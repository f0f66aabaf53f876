// Package workflow is the only writer of the registries and proposal queues.
// It validates candidate names, files proposals and applies human decisions
// (approve, reject, edit, defer) to them.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/binnyhq/part-namer/pkg/filelock"
	"github.com/binnyhq/part-namer/pkg/proposal"
	"github.com/binnyhq/part-namer/pkg/registry"
)

// Config locates the four files the Engine manages.
type Config struct {
	PrefixesFile          string
	MaterialsFile         string
	PrefixProposalsFile   string
	MaterialProposalsFile string
	// LockTimeout bounds every lock wait. Zero means filelock.DefaultTimeout.
	LockTimeout time.Duration
}

// Validate checks that every path is set.
func (c Config) Validate() error {
	paths := []struct{ name, v string }{
		{"prefixes file", c.PrefixesFile},
		{"materials file", c.MaterialsFile},
		{"prefix proposals file", c.PrefixProposalsFile},
		{"material proposals file", c.MaterialProposalsFile},
	}
	for _, p := range paths {
		if p.v == "" {
			return fmt.Errorf("workflow config: %s is required", p.name)
		}
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("workflow config: lock timeout must not be negative")
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder sets where decision events are sent.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithClock overrides the time source used for proposals and events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine coordinates the registry stores and proposal queues of both kinds.
// It holds no state besides its configuration, so several Engines (in one
// process or many) may share the same files.
type Engine struct {
	registries map[registry.Kind]*registry.Store
	queues     map[registry.Kind]*proposal.Queue
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time
}

// New returns an Engine for cfg.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.LockTimeout
	if timeout == 0 {
		timeout = filelock.DefaultTimeout
	}

	e := &Engine{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	qopts := []proposal.Option{
		proposal.WithClock(e.now),
		proposal.WithValidator(validateProposal),
	}
	e.registries = map[registry.Kind]*registry.Store{
		registry.KindPrefix:   registry.NewStore(registry.KindPrefix, cfg.PrefixesFile, timeout),
		registry.KindMaterial: registry.NewStore(registry.KindMaterial, cfg.MaterialsFile, timeout),
	}
	e.queues = map[registry.Kind]*proposal.Queue{
		registry.KindPrefix:   proposal.NewQueue(registry.KindPrefix, cfg.PrefixProposalsFile, timeout, qopts...),
		registry.KindMaterial: proposal.NewQueue(registry.KindMaterial, cfg.MaterialProposalsFile, timeout, qopts...),
	}
	return e, nil
}

func (e *Engine) store(kind registry.Kind) (*registry.Store, error) {
	s, ok := e.registries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", registry.ErrUnknownKind, kind)
	}
	return s, nil
}

func (e *Engine) queue(kind registry.Kind) (*proposal.Queue, error) {
	q, ok := e.queues[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", registry.ErrUnknownKind, kind)
	}
	return q, nil
}

// DecisionResult is the outcome of ValidateName.
type DecisionResult string

const (
	DecisionExists         DecisionResult = "exists"
	DecisionProposalNeeded DecisionResult = "proposal_needed"
)

// Decision answers whether a candidate code can be used as is. Entry is set
// when the code exists; Candidate holds the fields to propose otherwise.
type Decision struct {
	Result    DecisionResult
	Entry     registry.Entry
	Candidate proposal.Fields
}

// ValidateName looks code up in the kind's registry. extra is the candidate
// format template for prefixes and is ignored for materials. It never writes.
func (e *Engine) ValidateName(ctx context.Context, kind registry.Kind, code, description, extra string) (Decision, error) {
	s, err := e.store(kind)
	if err != nil {
		return Decision{}, err
	}
	entry, err := s.Lookup(ctx, code)
	switch {
	case err == nil:
		return Decision{Result: DecisionExists, Entry: entry}, nil
	case errors.Is(err, registry.ErrEntryNotFound):
	default:
		return Decision{}, err
	}

	var candidate proposal.Fields
	switch kind {
	case registry.KindPrefix:
		candidate = proposal.PrefixFields{Prefix: code, Description: description, FormatTemplate: extra}
	case registry.KindMaterial:
		candidate = proposal.MaterialFields{MaterialCode: code, Description: description}
	}
	return Decision{Result: DecisionProposalNeeded, Candidate: candidate}, nil
}

// Propose validates fields and reasoning and files a pending proposal.
// Proposals for codes that already exist or are already proposed are
// accepted; uniqueness is enforced when a proposal is approved.
func (e *Engine) Propose(ctx context.Context, fields proposal.Fields, reasoning string) (proposal.Proposal, error) {
	if fields == nil {
		return proposal.Proposal{}, &FieldError{Field: "fields", Reason: "missing"}
	}
	fields = normalizeFields(fields)
	reasoning = strings.TrimSpace(reasoning)
	candidate := proposal.Proposal{Fields: fields, Reasoning: reasoning}
	if err := validateProposal(candidate); err != nil {
		return proposal.Proposal{}, err
	}
	q, err := e.queue(fields.Kind())
	if err != nil {
		return proposal.Proposal{}, err
	}

	p, err := q.Create(ctx, fields, reasoning)
	if err != nil {
		return proposal.Proposal{}, err
	}
	e.logger.Info("proposal created", "kind", p.Kind(), "proposal", p.ID, "code", p.Code())
	e.record(ctx, Event{Kind: p.Kind(), ProposalID: p.ID, Code: p.Code(), Action: ActionPropose, Outcome: OutcomeCreated, Detail: reasoning})
	return p, nil
}

// Get returns one proposal.
func (e *Engine) Get(ctx context.Context, kind registry.Kind, id string) (proposal.Proposal, error) {
	q, err := e.queue(kind)
	if err != nil {
		return proposal.Proposal{}, err
	}
	return q.Get(ctx, id)
}

// ListPending returns the kind's pending proposals, oldest first.
func (e *Engine) ListPending(ctx context.Context, kind registry.Kind) ([]proposal.Proposal, error) {
	q, err := e.queue(kind)
	if err != nil {
		return nil, err
	}
	return q.ListPending(ctx)
}

// ListProposals returns every proposal of the kind, decided ones included.
func (e *Engine) ListProposals(ctx context.Context, kind registry.Kind) ([]proposal.Proposal, error) {
	q, err := e.queue(kind)
	if err != nil {
		return nil, err
	}
	return q.List(ctx)
}

// ListEntries returns the kind's committed entries in document order.
func (e *Engine) ListEntries(ctx context.Context, kind registry.Kind) ([]registry.Entry, error) {
	s, err := e.store(kind)
	if err != nil {
		return nil, err
	}
	return s.List(ctx)
}

// LookupEntry returns a committed entry.
func (e *Engine) LookupEntry(ctx context.Context, kind registry.Kind, code string) (registry.Entry, error) {
	s, err := e.store(kind)
	if err != nil {
		return nil, err
	}
	return s.Lookup(ctx, code)
}

// Paths returns the registry document and proposal log of kind.
func (e *Engine) Paths(kind registry.Kind) (registryPath, proposalsPath string, err error) {
	s, err := e.store(kind)
	if err != nil {
		return "", "", err
	}
	q, err := e.queue(kind)
	if err != nil {
		return "", "", err
	}
	return s.Path(), q.Path(), nil
}
