// Package proposal keeps the durable queue of proposals for one registry kind
// in a JSON-lines log.
package proposal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/binnyhq/part-namer/pkg/atomicfile"
	"github.com/binnyhq/part-namer/pkg/filelock"
	"github.com/binnyhq/part-namer/pkg/registry"
)

var (
	ErrNotFound   = errors.New("proposal not found")
	ErrNotPending = errors.New("proposal is not pending")
	ErrCorruptLog = errors.New("corrupt proposal log")
)

// maxIDAttempts bounds ID regeneration on collision.
const maxIDAttempts = 16

// Validator checks a proposal before it is persisted by Update.
type Validator func(Proposal) error

// Queue is the proposal log for one kind. Every write holds the log's
// exclusive lock and rewrites the whole log atomically; reads take no lock.
type Queue struct {
	kind     registry.Kind
	path     string
	lock     filelock.Locker
	now      func() time.Time
	newID    func() string
	validate Validator
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithValidator installs the check Update runs on the merged proposal.
func WithValidator(v Validator) Option {
	return func(q *Queue) {
		q.validate = v
	}
}

// NewQueue returns a Queue backed by the log at path.
func NewQueue(kind registry.Kind, path string, lockTimeout time.Duration, opts ...Option) *Queue {
	q := &Queue{
		kind: kind,
		path: path,
		lock: filelock.New(path, lockTimeout),
		now:  time.Now,
	}
	q.newID = q.randomID
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Kind returns the queue's registry kind.
func (q *Queue) Kind() registry.Kind {
	return q.kind
}

// Path returns the log path.
func (q *Queue) Path() string {
	return q.path
}

// Create appends a new pending proposal with a fresh ID.
func (q *Queue) Create(ctx context.Context, fields Fields, reasoning string) (Proposal, error) {
	if fields == nil {
		return Proposal{}, errors.New("proposal: nil fields")
	}
	if fields.Kind() != q.kind {
		return Proposal{}, fmt.Errorf("%w: %s proposal for %s queue", registry.ErrKindMismatch, fields.Kind(), q.kind)
	}

	var created Proposal
	err := q.lock.WithLock(ctx, func() error {
		all, err := q.read()
		if err != nil {
			return err
		}
		id, err := q.uniqueID(all)
		if err != nil {
			return err
		}
		created = Proposal{
			ID:        id,
			CreatedAt: q.now().UTC(),
			Status:    StatusPending,
			Reasoning: reasoning,
			Fields:    fields,
		}
		return q.write(append(all, created))
	})
	if err != nil {
		return Proposal{}, err
	}
	return created, nil
}

// Get returns the proposal with the given ID.
func (q *Queue) Get(ctx context.Context, id string) (Proposal, error) {
	all, err := q.List(ctx)
	if err != nil {
		return Proposal{}, err
	}
	i := indexOf(all, id)
	if i < 0 {
		return Proposal{}, fmt.Errorf("%s proposal %q: %w", q.kind, id, ErrNotFound)
	}
	return all[i], nil
}

// List returns every proposal in log order, decided ones included.
func (q *Queue) List(ctx context.Context) ([]Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return q.read()
}

// ListPending returns pending proposals, oldest first.
func (q *Queue) ListPending(ctx context.Context) ([]Proposal, error) {
	all, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]Proposal, 0, len(all))
	for _, p := range all {
		if p.Status == StatusPending {
			pending = append(pending, p)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// Update merges patch into a pending proposal and persists it.
func (q *Queue) Update(ctx context.Context, id string, patch Patch) (Proposal, error) {
	var updated Proposal
	err := q.mutate(ctx, id, func(all []Proposal, i int) (bool, error) {
		p, err := patch.apply(all[i])
		if err != nil {
			return false, err
		}
		if q.validate != nil {
			if err := q.validate(p); err != nil {
				return false, err
			}
		}
		updated = p
		if patch.IsEmpty() {
			return false, nil
		}
		all[i] = p
		return true, nil
	})
	if err != nil {
		return Proposal{}, err
	}
	return updated, nil
}

// SetStatus moves a pending proposal to a terminal status.
func (q *Queue) SetStatus(ctx context.Context, id string, status Status) error {
	if !CanTransition(StatusPending, status) || status == StatusPending {
		return fmt.Errorf("%w: cannot set %q", ErrInvalidStatus, status)
	}
	_, err := q.Resolve(ctx, id, func(Proposal, []Proposal) (Status, error) {
		return status, nil
	})
	return err
}

// Resolve calls decide with the pending proposal and the whole log while
// holding the log lock, and persists the status it returns. Returning StatusPending leaves the log
// untouched; an error from decide is returned as is and nothing is written.
// The returned proposal reflects what was persisted.
func (q *Queue) Resolve(ctx context.Context, id string, decide func(p Proposal, log []Proposal) (Status, error)) (Proposal, error) {
	var resolved Proposal
	err := q.mutate(ctx, id, func(all []Proposal, i int) (bool, error) {
		p := all[i]
		resolved = p
		next, err := decide(p, all)
		if err != nil {
			return false, err
		}
		if next == StatusPending {
			return false, nil
		}
		if !CanTransition(p.Status, next) {
			return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, p.Status, next)
		}
		p.Status = next
		p.DecidedAt = q.now().UTC()
		all[i] = p
		resolved = p
		return true, nil
	})
	if err != nil {
		return resolved, err
	}
	return resolved, nil
}

// mutate runs fn on a pending proposal under the lock and rewrites the log
// when fn reports a change.
func (q *Queue) mutate(ctx context.Context, id string, fn func(all []Proposal, i int) (bool, error)) error {
	return q.lock.WithLock(ctx, func() error {
		all, err := q.read()
		if err != nil {
			return err
		}
		i := indexOf(all, id)
		if i < 0 {
			return fmt.Errorf("%s proposal %q: %w", q.kind, id, ErrNotFound)
		}
		if all[i].Status != StatusPending {
			return fmt.Errorf("%s proposal %q is %s: %w", q.kind, id, all[i].Status, ErrNotPending)
		}
		changed, err := fn(all, i)
		if err != nil || !changed {
			return err
		}
		return q.write(all)
	})
}

func (q *Queue) read() ([]Proposal, error) {
	data, err := atomicfile.ReadFile(q.path)
	if err != nil {
		return nil, fmt.Errorf("proposal: %w", err)
	}

	var out []Proposal
	for n, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		p, err := decodeRecord(q.kind, line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrCorruptLog, q.path, n+1, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (q *Queue) write(all []Proposal) error {
	var buf bytes.Buffer
	for _, p := range all {
		line, err := encodeRecord(p)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := atomicfile.WriteFile(q.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("proposal: %w", err)
	}
	return nil
}

func (q *Queue) uniqueID(all []Proposal) (string, error) {
	for range maxIDAttempts {
		id := q.newID()
		if indexOf(all, id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("proposal: could not allocate a unique id after %d attempts", maxIDAttempts)
}

// randomID returns "<kind>_<12 hex digits>".
func (q *Queue) randomID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%s", q.kind, hex[:12])
}

func indexOf(all []Proposal, id string) int {
	for i, p := range all {
		if p.ID == id {
			return i
		}
	}
	return -1
}
