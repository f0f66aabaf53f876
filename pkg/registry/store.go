// Package registry stores the approved prefixes and materials, one markdown
// document per kind.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/binnyhq/part-namer/pkg/atomicfile"
	"github.com/binnyhq/part-namer/pkg/filelock"
)

var (
	// ErrDuplicateCode is returned by Append when the code is already present.
	ErrDuplicateCode = errors.New("duplicate code")
	// ErrEntryNotFound is returned by Lookup.
	ErrEntryNotFound = errors.New("registry entry not found")
	// ErrKindMismatch is returned when an entry is appended to the other
	// kind's registry.
	ErrKindMismatch = errors.New("entry kind does not match registry")
)

// Store reads and appends entries of one kind. Reads take no lock; Append
// holds an exclusive lock on the document for its whole read-modify-write
// cycle and replaces the document atomically, so readers always see a
// complete file.
type Store struct {
	kind Kind
	path string
	lock filelock.Locker
}

// NewStore returns a Store for the document at path.
func NewStore(kind Kind, path string, lockTimeout time.Duration) *Store {
	return &Store{
		kind: kind,
		path: path,
		lock: filelock.New(path, lockTimeout),
	}
}

// Kind returns the registry kind.
func (s *Store) Kind() Kind {
	return s.kind
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// List returns every entry in document order. A missing document is empty.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

// Exists reports whether code is present. Matching is case-sensitive.
func (s *Store) Exists(ctx context.Context, code string) (bool, error) {
	_, err := s.Lookup(ctx, code)
	if errors.Is(err, ErrEntryNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Lookup returns the entry for code.
func (s *Store) Lookup(ctx context.Context, code string) (Entry, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if e, ok := find(entries, code); ok {
		return e, nil
	}
	return nil, fmt.Errorf("%s %q: %w", s.kind, code, ErrEntryNotFound)
}

// Append adds entry as a new section at the end of the document. The
// uniqueness check runs under the same lock as the write.
func (s *Store) Append(ctx context.Context, entry Entry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if entry.Kind() != s.kind {
		return fmt.Errorf("%w: %s entry for %s registry", ErrKindMismatch, entry.Kind(), s.kind)
	}
	sec, err := encodeSection(entry)
	if err != nil {
		return err
	}

	return s.lock.WithLock(ctx, func() error {
		doc, err := atomicfile.ReadFile(s.path)
		if err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		entries, err := decode(s.kind, s.path, doc)
		if err != nil {
			return err
		}
		if _, ok := find(entries, entry.Key()); ok {
			return fmt.Errorf("%s %q: %w", s.kind, entry.Key(), ErrDuplicateCode)
		}

		if err := atomicfile.WriteFile(s.path, appendSection(s.kind, doc, sec), 0o644); err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		return nil
	})
}

func (s *Store) read() ([]Entry, error) {
	doc, err := atomicfile.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return decode(s.kind, s.path, doc)
}

func find(entries []Entry, code string) (Entry, bool) {
	for _, e := range entries {
		if e.Key() == code {
			return e, true
		}
	}
	return nil, false
}
