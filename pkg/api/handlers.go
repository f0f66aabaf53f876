package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/binnyhq/part-namer/pkg/audit"
	"github.com/binnyhq/part-namer/pkg/cache"
	"github.com/binnyhq/part-namer/pkg/nametemplate"
	"github.com/binnyhq/part-namer/pkg/proposal"
	"github.com/binnyhq/part-namer/pkg/registry"
	"github.com/binnyhq/part-namer/pkg/workflow"
)

type handlers struct {
	engine *workflow.Engine
	audit  *audit.Store
	cache  *cache.RegistryCache
	logger *slog.Logger
}

// GET /registries/{kind}
func (h *handlers) listEntries(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	entries, err := h.engine.ListEntries(r.Context(), kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": NewEntryViews(entries)})
}

// GET /registries/{kind}/{code}
func (h *handlers) getEntry(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	entry, err := h.engine.LookupEntry(r.Context(), kind, chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewEntryView(entry))
}

// POST /registries/{kind}/validate
func (h *handlers) validateName(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	var body struct {
		Code           string `json:"code"`
		Description    string `json:"description"`
		FormatTemplate string `json:"format_template"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Code == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidField, "code is required")
		return
	}

	d, err := h.engine.ValidateName(r.Context(), kind, body.Code, body.Description, body.FormatTemplate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewDecisionView(d))
}

// GET /proposals/{kind}?status=pending|all
func (h *handlers) listProposals(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	var (
		ps  []proposal.Proposal
		err error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", string(proposal.StatusPending):
		ps, err = h.engine.ListPending(r.Context(), kind)
	case "all":
		ps, err = h.engine.ListProposals(r.Context(), kind)
	default:
		st, perr := proposal.ParseStatus(status)
		if perr != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "status must be pending, approved, rejected or all")
			return
		}
		var all []proposal.Proposal
		all, err = h.engine.ListProposals(r.Context(), kind)
		for _, p := range all {
			if p.Status == st {
				ps = append(ps, p)
			}
		}
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": NewProposalViews(ps)})
}

// POST /proposals/{kind}
func (h *handlers) createProposal(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	var body ProposalRequest
	if !decodeBody(w, r, &body) {
		return
	}
	fields, err := body.Fields(kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.engine.Propose(r.Context(), fields, body.Reasoning)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewProposalView(p))
}

// GET /proposals/{kind}/{id}
func (h *handlers) getProposal(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	p, err := h.engine.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewProposalView(p))
}

// PATCH /proposals/{kind}/{id}
func (h *handlers) editProposal(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	var patch proposal.Patch
	if !decodeBody(w, r, &patch) {
		return
	}
	p, err := h.engine.Edit(r.Context(), kind, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewProposalView(p))
}

// POST /proposals/{kind}/{id}/approve
func (h *handlers) approveProposal(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	entry, err := h.engine.Approve(r.Context(), kind, chi.URLParam(r, "id"))
	// A failed approval may still have appended the entry.
	h.cache.Invalidate(kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewEntryView(entry))
}

// POST /proposals/{kind}/{id}/reject
func (h *handlers) rejectProposal(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.engine.Reject(r.Context(), kind, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"proposal_id": id, "status": string(proposal.StatusRejected)})
}

// POST /proposals/{kind}/{id}/defer
func (h *handlers) deferProposal(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	p, err := h.engine.Defer(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewProposalView(p))
}

// POST /render
func (h *handlers) render(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Template string            `json:"template"`
		Values   map[string]string `json:"values"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	name, err := nametemplate.Render(body.Template, body.Values)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// POST /names
func (h *handlers) generateName(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prefix string            `json:"prefix"`
		Values map[string]string `json:"values"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	name, err := h.engine.GenerateName(r.Context(), body.Prefix, body.Values)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// GET /audit?kind=...&proposal=...&pageSize=20&pageToken=...
func (h *handlers) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pageSize := 20
	if ps := q.Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			pageSize = v
		}
	}

	records, next, total, err := h.audit.List(r.Context(), audit.Filter{
		Kind:       q.Get("kind"),
		ProposalID: q.Get("proposal"),
	}, pageSize, q.Get("pageToken"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("failed to list audit events: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":        records,
		"nextPageToken": next,
		"totalSize":     total,
	})
}

// GET /audit/{eventID}
func (h *handlers) getAudit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.audit.Get(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) kind(w http.ResponseWriter, r *http.Request) (registry.Kind, bool) {
	kind, err := registry.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeUnknownKind, err.Error())
		return "", false
	}
	return kind, true
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
