package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/binnyhq/part-namer/pkg/proposal"
	"github.com/binnyhq/part-namer/pkg/registry"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Record(_ context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) last() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func testConfig(dir string) Config {
	return Config{
		PrefixesFile:          filepath.Join(dir, "prefixes.md"),
		MaterialsFile:         filepath.Join(dir, "materials.md"),
		PrefixProposalsFile:   filepath.Join(dir, "proposals_prefix.jsonl"),
		MaterialProposalsFile: filepath.Join(dir, "proposals_material.jsonl"),
		LockTimeout:           5 * time.Second,
	}
}

func setupEngine(t *testing.T) (*Engine, *eventLog, Config) {
	t.Helper()
	cfg := testConfig(t.TempDir())
	events := &eventLog{}
	e, err := New(cfg, WithRecorder(events))
	require.NoError(t, err)
	return e, events, cfg
}

func screw() proposal.PrefixFields {
	return proposal.PrefixFields{
		Prefix:         "SCREW",
		Description:    "Socket head cap screws",
		FormatTemplate: "SCREW-{MATERIAL}-{THREAD}-{LENGTH}",
	}
}

func ptr(s string) *string { return &s }

func TestNew_RejectsIncompleteConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaterialProposalsFile = ""
	_, err := New(cfg)
	require.Error(t, err)
}

func TestEngine_ProposeAndApproveScenario(t *testing.T) {
	ctx := context.Background()
	e, events, _ := setupEngine(t)

	p, err := e.Propose(ctx, screw(), "Needed for the gearbox assembly")
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusPending, p.Status)
	assert.NotEmpty(t, p.ID)

	entry, err := e.Approve(ctx, registry.KindPrefix, p.ID)
	require.NoError(t, err)
	assert.Equal(t, registry.PrefixEntry{
		Code:           "SCREW",
		Description:    "Socket head cap screws",
		FormatTemplate: "SCREW-{MATERIAL}-{THREAD}-{LENGTH}",
	}, entry)

	d, err := e.ValidateName(ctx, registry.KindPrefix, "SCREW", "", "")
	require.NoError(t, err)
	assert.Equal(t, DecisionExists, d.Result)
	assert.Equal(t, entry, d.Entry)

	got, err := e.Get(ctx, registry.KindPrefix, p.ID)
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusApproved, got.Status)

	ev := events.last()
	assert.Equal(t, ActionApprove, ev.Action)
	assert.Equal(t, OutcomeCommitted, ev.Outcome)
	assert.Equal(t, DefaultActor, ev.Actor)
}

func TestEngine_ValidateNameProposalNeeded(t *testing.T) {
	e, _, _ := setupEngine(t)

	d, err := e.ValidateName(context.Background(), registry.KindPrefix, "NUT", "Hex nuts", "NUT-{MATERIAL}")
	require.NoError(t, err)
	assert.Equal(t, DecisionProposalNeeded, d.Result)
	assert.Nil(t, d.Entry)
	assert.Equal(t, proposal.PrefixFields{Prefix: "NUT", Description: "Hex nuts", FormatTemplate: "NUT-{MATERIAL}"}, d.Candidate)

	d, err = e.ValidateName(context.Background(), registry.KindMaterial, "SS118", "18-8 stainless", "ignored")
	require.NoError(t, err)
	assert.Equal(t, proposal.MaterialFields{MaterialCode: "SS118", Description: "18-8 stainless"}, d.Candidate)

	_, err = e.ValidateName(context.Background(), registry.Kind("thread"), "M8", "", "")
	require.ErrorIs(t, err, registry.ErrUnknownKind)
}

func TestEngine_ProposeInvalidFields(t *testing.T) {
	e, _, cfg := setupEngine(t)

	tests := []struct {
		name      string
		fields    proposal.Fields
		reasoning string
		field     string
	}{
		{"lowercase prefix", proposal.PrefixFields{Prefix: "screw", Description: "d", FormatTemplate: "S-{A}"}, "r", "prefix"},
		{"long prefix", proposal.PrefixFields{Prefix: "SCREWS", Description: "d", FormatTemplate: "S-{A}"}, "r", "prefix"},
		{"digit in prefix", proposal.PrefixFields{Prefix: "M8", Description: "d", FormatTemplate: "S-{A}"}, "r", "prefix"},
		{"empty description", proposal.PrefixFields{Prefix: "NUT", Description: "  ", FormatTemplate: "N-{A}"}, "r", "description"},
		{"template without placeholder", proposal.PrefixFields{Prefix: "NUT", Description: "d", FormatTemplate: "NUT"}, "r", "format_template"},
		{"malformed template", proposal.PrefixFields{Prefix: "NUT", Description: "d", FormatTemplate: "NUT-{A"}, "r", "format_template"},
		{"backtick template", proposal.PrefixFields{Prefix: "NUT", Description: "d", FormatTemplate: "NUT-`{A}`"}, "r", "format_template"},
		{"material lowercase", proposal.MaterialFields{MaterialCode: "ss118", Description: "d"}, "r", "material_code"},
		{"material punctuation", proposal.MaterialFields{MaterialCode: "SS-118", Description: "d"}, "r", "material_code"},
		{"multi-line description", proposal.MaterialFields{MaterialCode: "BR", Description: "a\nb"}, "r", "description"},
		{"empty reasoning", proposal.MaterialFields{MaterialCode: "BR", Description: "Brass"}, " ", "reasoning"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Propose(context.Background(), tt.fields, tt.reasoning)
			require.ErrorIs(t, err, ErrInvalidField)

			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}

	_, err := os.Stat(cfg.PrefixProposalsFile)
	assert.True(t, os.IsNotExist(err), "invalid proposals must not be persisted")
}

func TestEngine_ProposeTrimsFields(t *testing.T) {
	e, _, _ := setupEngine(t)

	p, err := e.Propose(context.Background(), proposal.MaterialFields{MaterialCode: " BR ", Description: " Brass "}, " common alloy ")
	require.NoError(t, err)
	assert.Equal(t, proposal.MaterialFields{MaterialCode: "BR", Description: "Brass"}, p.Fields)
	assert.Equal(t, "common alloy", p.Reasoning)
}

func TestEngine_TerminalStatus(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setupEngine(t)

	approved, err := e.Propose(ctx, screw(), "r")
	require.NoError(t, err)
	_, err = e.Approve(ctx, registry.KindPrefix, approved.ID)
	require.NoError(t, err)

	rejected, err := e.Propose(ctx, proposal.PrefixFields{Prefix: "NUT", Description: "Hex nuts", FormatTemplate: "NUT-{MATERIAL}"}, "r")
	require.NoError(t, err)
	require.NoError(t, e.Reject(ctx, registry.KindPrefix, rejected.ID))

	for _, id := range []string{approved.ID, rejected.ID} {
		_, err = e.Approve(ctx, registry.KindPrefix, id)
		assert.ErrorIs(t, err, proposal.ErrNotPending)
		assert.ErrorIs(t, e.Reject(ctx, registry.KindPrefix, id), proposal.ErrNotPending)
		_, err = e.Edit(ctx, registry.KindPrefix, id, proposal.Patch{Description: ptr("x")})
		assert.ErrorIs(t, err, proposal.ErrNotPending)
		_, err = e.Defer(ctx, registry.KindPrefix, id)
		assert.ErrorIs(t, err, proposal.ErrNotPending)
	}

	got, err := e.Get(ctx, registry.KindPrefix, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusRejected, got.Status)

	entries, err := e.ListEntries(ctx, registry.KindPrefix)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "reject must not touch the registry")
}

func TestEngine_ApproveNotFound(t *testing.T) {
	e, _, _ := setupEngine(t)
	_, err := e.Approve(context.Background(), registry.KindMaterial, "material_000000000000")
	require.ErrorIs(t, err, proposal.ErrNotFound)
	require.ErrorIs(t, e.Reject(context.Background(), registry.KindMaterial, "material_000000000000"), proposal.ErrNotFound)
}

func TestEngine_ApproveIsIdempotentAfterInterruptedCommit(t *testing.T) {
	ctx := context.Background()
	e, events, cfg := setupEngine(t)

	p, err := e.Propose(ctx, proposal.MaterialFields{MaterialCode: "SS118", Description: "18-8 stainless steel"}, "r")
	require.NoError(t, err)

	// An earlier approval appended the entry and died before updating the log.
	store := registry.NewStore(registry.KindMaterial, cfg.MaterialsFile, time.Second)
	require.NoError(t, store.Append(ctx, p.Fields.Entry()))

	entry, err := e.Approve(ctx, registry.KindMaterial, p.ID)
	require.NoError(t, err)
	assert.Equal(t, registry.MaterialEntry{Code: "SS118", Description: "18-8 stainless steel"}, entry)
	assert.Equal(t, OutcomeAlreadyCommitted, events.last().Outcome)

	got, err := e.Get(ctx, registry.KindMaterial, p.ID)
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusApproved, got.Status)

	data, err := os.ReadFile(cfg.MaterialsFile)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "## SS118"))
}

func TestEngine_ApproveConflictLeavesProposalPending(t *testing.T) {
	ctx := context.Background()
	e, events, _ := setupEngine(t)

	first, err := e.Propose(ctx, screw(), "r")
	require.NoError(t, err)
	other := screw()
	other.Description = "Machine screws"
	second, err := e.Propose(ctx, other, "r")
	require.NoError(t, err)

	_, err = e.Approve(ctx, registry.KindPrefix, first.ID)
	require.NoError(t, err)

	_, err = e.Approve(ctx, registry.KindPrefix, second.ID)
	require.ErrorIs(t, err, ErrConflictingEntry)
	assert.Equal(t, OutcomeConflict, events.last().Outcome)

	got, err := e.Get(ctx, registry.KindPrefix, second.ID)
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusPending, got.Status)

	// The reviewer can rename and approve it.
	_, err = e.Edit(ctx, registry.KindPrefix, second.ID, proposal.Patch{Prefix: ptr("MSCRW"), FormatTemplate: ptr("MSCRW-{MATERIAL}-{THREAD}")})
	require.NoError(t, err)
	entry, err := e.Approve(ctx, registry.KindPrefix, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "MSCRW", entry.Key())
}

func TestEngine_IdenticalDuplicateProposalConflicts(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setupEngine(t)

	first, err := e.Propose(ctx, screw(), "gearbox")
	require.NoError(t, err)
	second, err := e.Propose(ctx, screw(), "gearbox, again")
	require.NoError(t, err)

	_, err = e.Approve(ctx, registry.KindPrefix, first.ID)
	require.NoError(t, err)

	_, err = e.Approve(ctx, registry.KindPrefix, second.ID)
	require.ErrorIs(t, err, ErrConflictingEntry)
	assert.ErrorContains(t, err, first.ID)

	got, err := e.Get(ctx, registry.KindPrefix, second.ID)
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusPending, got.Status)
}

func TestEngine_ConcurrentApprovalsSameCode(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir())
	seed, err := New(cfg)
	require.NoError(t, err)

	const n = 6
	ids := make([]string, n)
	for i := range ids {
		f := screw()
		f.Description = strings.Repeat("x", i+1)
		p, err := seed.Propose(ctx, f, "r")
		require.NoError(t, err)
		ids[i] = p.ID
	}

	results := make([]error, n)
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			// A separate Engine per caller, as separate processes would have.
			e, err := New(cfg)
			if err != nil {
				return err
			}
			_, results[i] = e.Approve(ctx, registry.KindPrefix, id)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflictingEntry):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)

	entries, err := seed.ListEntries(ctx, registry.KindPrefix)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	pending, err := seed.ListPending(ctx, registry.KindPrefix)
	require.NoError(t, err)
	assert.Len(t, pending, n-1)
}

func TestEngine_PrefixAndMaterialDoNotBlockEachOther(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setupEngine(t)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			_, err := e.Propose(ctx, screw(), "r")
			return err
		})
		g.Go(func() error {
			_, err := e.Propose(ctx, proposal.MaterialFields{MaterialCode: "BR", Description: "Brass"}, "r")
			return err
		})
	}
	require.NoError(t, g.Wait())

	prefixes, err := e.ListProposals(ctx, registry.KindPrefix)
	require.NoError(t, err)
	materials, err := e.ListProposals(ctx, registry.KindMaterial)
	require.NoError(t, err)
	assert.Len(t, prefixes, 4)
	assert.Len(t, materials, 4)
}

func TestEngine_Edit(t *testing.T) {
	ctx := context.Background()
	e, events, _ := setupEngine(t)

	p, err := e.Propose(ctx, screw(), "r")
	require.NoError(t, err)

	edited, err := e.Edit(ctx, registry.KindPrefix, p.ID, proposal.Patch{Description: ptr(" Cap screws ")})
	require.NoError(t, err)
	assert.Equal(t, p.ID, edited.ID)
	assert.Equal(t, "Cap screws", edited.Fields.(proposal.PrefixFields).Description)
	assert.Equal(t, ActionEdit, events.last().Action)

	_, err = e.Edit(ctx, registry.KindPrefix, p.ID, proposal.Patch{Prefix: ptr("screw")})
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "prefix", fe.Field)

	_, err = e.Edit(ctx, registry.KindPrefix, p.ID, proposal.Patch{MaterialCode: ptr("BR")})
	require.ErrorIs(t, err, ErrInvalidField)

	got, err := e.Get(ctx, registry.KindPrefix, p.ID)
	require.NoError(t, err)
	assert.Equal(t, edited, got)
}

func TestEngine_Defer(t *testing.T) {
	ctx := context.Background()
	e, events, _ := setupEngine(t)

	p, err := e.Propose(ctx, proposal.MaterialFields{MaterialCode: "BR", Description: "Brass"}, "r")
	require.NoError(t, err)

	deferred, err := e.Defer(WithActor(ctx, "alice"), registry.KindMaterial, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, deferred)

	ev := events.last()
	assert.Equal(t, ActionDefer, ev.Action)
	assert.Equal(t, "alice", ev.Actor)

	pending, err := e.ListPending(ctx, registry.KindMaterial)
	require.NoError(t, err)
	assert.Equal(t, []proposal.Proposal{p}, pending)
}

func TestEngine_GenerateName(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setupEngine(t)

	_, err := e.GenerateName(ctx, "SCREW", map[string]string{"MATERIAL": "SS118"})
	require.ErrorIs(t, err, registry.ErrEntryNotFound)

	for _, f := range []proposal.Fields{screw(), proposal.MaterialFields{MaterialCode: "SS118", Description: "18-8 stainless steel"}} {
		p, err := e.Propose(ctx, f, "r")
		require.NoError(t, err)
		_, err = e.Approve(ctx, f.Kind(), p.ID)
		require.NoError(t, err)
	}

	name, err := e.GenerateName(ctx, "SCREW", map[string]string{"MATERIAL": "SS118", "THREAD": "M8", "LENGTH": "20"})
	require.NoError(t, err)
	assert.Equal(t, "SCREW-SS118-M8-20", name)

	_, err = e.GenerateName(ctx, "SCREW", map[string]string{"MATERIAL": "TI", "THREAD": "M8", "LENGTH": "20"})
	require.ErrorIs(t, err, ErrUnknownMaterial)

	_, err = e.GenerateName(ctx, "SCREW", map[string]string{"MATERIAL": "SS118", "LENGTH": "20"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{THREAD}")
}

func TestEngine_GenerateNameIgnoresUnusedMaterial(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setupEngine(t)

	f := proposal.PrefixFields{Prefix: "SPACR", Description: "Nylon spacers", FormatTemplate: "SPACR-{OD}-{LENGTH}"}
	p, err := e.Propose(ctx, f, "r")
	require.NoError(t, err)
	_, err = e.Approve(ctx, registry.KindPrefix, p.ID)
	require.NoError(t, err)

	name, err := e.GenerateName(ctx, "SPACR", map[string]string{"OD": "10", "LENGTH": "5", "MATERIAL": "NYLON"})
	require.NoError(t, err)
	assert.Equal(t, "SPACR-10-5", name)
}

func TestEngine_RecorderFailureIsNotReturned(t *testing.T) {
	cfg := testConfig(t.TempDir())
	e, err := New(cfg, WithRecorder(RecorderFunc(func(context.Context, Event) error {
		return errors.New("audit database unavailable")
	})))
	require.NoError(t, err)

	_, err = e.Propose(context.Background(), screw(), "r")
	require.NoError(t, err)
}
