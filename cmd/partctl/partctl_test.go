package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binnyhq/part-namer/pkg/api"
	"github.com/binnyhq/part-namer/pkg/nametemplate"
	"github.com/binnyhq/part-namer/pkg/proposal"
	"github.com/binnyhq/part-namer/pkg/registry"
	"github.com/binnyhq/part-namer/pkg/workflow"
)

type harness struct {
	t    *testing.T
	dir  string
	base []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return &harness{
		t:   t,
		dir: dir,
		base: []string{
			"--prefixes-file", filepath.Join(dir, "prefixes.md"),
			"--materials-file", filepath.Join(dir, "materials.md"),
		},
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(append([]string{}, h.base...), args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "partctl %s", strings.Join(args, " "))
	return out
}

func (h *harness) proposeJSON(args ...string) api.ProposalView {
	h.t.Helper()
	var v api.ProposalView
	out := h.mustRun(append([]string{"-o", "json", "propose"}, args...)...)
	require.NoError(h.t, json.Unmarshal([]byte(out), &v))
	return v
}

func TestPartctl_ProposeApproveAndName(t *testing.T) {
	h := newHarness(t)

	screw := h.proposeJSON("prefix", "SCREW",
		"--description", "Socket head cap screws",
		"--format", "SCREW-{MATERIAL}-{THREAD}-{LENGTH}",
		"--reasoning", "Needed for the gearbox assembly")
	assert.Equal(t, proposal.StatusPending, screw.Status)
	assert.True(t, strings.HasPrefix(screw.ID, "prefix_"))

	out := h.mustRun("proposals", "list", "prefix")
	assert.Contains(t, out, screw.ID)
	assert.Contains(t, out, "Total: 1")

	out = h.mustRun("proposals", "approve", "prefix", screw.ID)
	assert.Contains(t, out, "SCREW-{MATERIAL}-{THREAD}-{LENGTH}")

	out = h.mustRun("proposals", "list", "prefix")
	assert.Contains(t, out, "Total: 0")

	ss := h.proposeJSON("material", "SS118", "--description", "18-8 stainless steel", "--reasoning", "Common fastener stock")
	h.mustRun("proposals", "approve", "materials", ss.ID)

	var entries []api.EntryView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("-o", "json", "entries", "material")), &entries))
	assert.Equal(t, []api.EntryView{{Kind: registry.KindMaterial, Code: "SS118", Description: "18-8 stainless steel"}}, entries)

	out = h.mustRun("name", "SCREW", "MATERIAL=SS118", "THREAD=M8", "LENGTH=20")
	assert.Equal(t, "SCREW-SS118-M8-20\n", out)

	_, err := h.run("name", "SCREW", "MATERIAL=BRASS", "THREAD=M8", "LENGTH=20")
	assert.ErrorIs(t, err, workflow.ErrUnknownMaterial)

	_, err = h.run("proposals", "approve", "prefix", screw.ID)
	assert.ErrorIs(t, err, proposal.ErrNotPending)
}

func TestPartctl_Validate(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("validate", "prefix", "BOLT", "--description", "Hex bolts", "--format", "BOLT-{MATERIAL}")
	assert.Contains(t, out, "is not registered")
	assert.Contains(t, out, `--format "BOLT-{MATERIAL}"`)

	var d api.DecisionView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("-o", "json", "validate", "prefix", "BOLT")), &d))
	assert.Equal(t, workflow.DecisionProposalNeeded, d.Result)
	assert.Nil(t, d.Entry)
}

func TestPartctl_EditDeferReject(t *testing.T) {
	h := newHarness(t)
	p := h.proposeJSON("material", "BR", "--description", "Brass", "--reasoning", "r")

	_, err := h.run("proposals", "edit", "material", p.ID)
	assert.ErrorContains(t, err, "nothing to change")

	var edited api.ProposalView
	out := h.mustRun("-o", "json", "proposals", "edit", "material", p.ID, "--description", "Brass (CZ121)")
	require.NoError(t, json.Unmarshal([]byte(out), &edited))
	assert.Equal(t, "Brass (CZ121)", edited.Description)
	assert.Equal(t, p.ID, edited.ID)

	out = h.mustRun("--actor", "alice", "proposals", "defer", "material", p.ID)
	assert.Contains(t, out, "pending")

	out = h.mustRun("proposals", "reject", "material", p.ID)
	assert.Equal(t, "Rejected "+p.ID+"\n", out)

	out = h.mustRun("proposals", "list", "material", "--all")
	assert.Contains(t, out, "rejected")
}

func TestPartctl_Audit(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("audit", "list")
	assert.ErrorIs(t, err, errAuditDisabled)

	h.base = append(h.base, "--audit-db", filepath.Join(h.dir, "audit.db"))
	p := h.proposeJSON("material", "AL6061", "--description", "Aluminium 6061", "--reasoning", "r")
	h.mustRun("--actor", "alice", "proposals", "approve", "material", p.ID)

	var page struct {
		Events []struct {
			Action string `json:"action"`
			Actor  string `json:"actor"`
		} `json:"events"`
		Total int `json:"totalSize"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("-o", "json", "audit", "list", "--proposal", p.ID)), &page))
	require.Equal(t, 2, page.Total)
	assert.Equal(t, string(workflow.ActionApprove), page.Events[0].Action)
	assert.Equal(t, "alice", page.Events[0].Actor)

	out := h.mustRun("audit", "prune", "--older-than", "1h")
	assert.Equal(t, "Deleted 0 events\n", out)
}

func TestPartctl_Render(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "1-2\n", h.mustRun("render", "{A}-{B}", "A=1", "B=2"))

	_, err := h.run("render", "{A}-{B}", "A=1")
	assert.ErrorIs(t, err, nametemplate.ErrMissingValue)

	_, err = h.run("render", "{A}", "A")
	assert.ErrorContains(t, err, "expected NAME=VALUE")
}

func TestPartctl_RejectsBadInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("-o", "xml", "entries", "prefix")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = h.run("entries", "threads")
	assert.ErrorIs(t, err, registry.ErrUnknownKind)

	_, err = h.run("propose", "prefix", "screw", "--description", "d", "--reasoning", "r", "--format", "S-{A}")
	assert.ErrorIs(t, err, workflow.ErrInvalidField)
}

func TestParseValues(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]string
		wantErr bool
	}{
		{name: "none", args: nil, want: map[string]string{}},
		{name: "pairs", args: []string{"A=1", "B=x=y"}, want: map[string]string{"A": "1", "B": "x=y"}},
		{name: "empty value", args: []string{"A="}, want: map[string]string{"A": ""}},
		{name: "missing equals", args: []string{"A"}, wantErr: true},
		{name: "missing name", args: []string{"=1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseValues(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "ÄÖ...", truncate("ÄÖÜßÄÖ", 5))
}
