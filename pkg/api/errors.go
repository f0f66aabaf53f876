package api

import (
	"errors"
	"net/http"

	"github.com/binnyhq/part-namer/pkg/audit"
	"github.com/binnyhq/part-namer/pkg/filelock"
	"github.com/binnyhq/part-namer/pkg/nametemplate"
	"github.com/binnyhq/part-namer/pkg/proposal"
	"github.com/binnyhq/part-namer/pkg/registry"
	"github.com/binnyhq/part-namer/pkg/workflow"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeNotPending        = "NOT_PENDING"
	CodeDuplicateCode     = "DUPLICATE_CODE"
	CodeConflictingEntry  = "CONFLICTING_ENTRY"
	CodeInvalidField      = "INVALID_FIELD"
	CodeUnknownMaterial   = "UNKNOWN_MATERIAL"
	CodeMissingValue      = "MISSING_VALUE"
	CodeMalformedTemplate = "MALFORMED_TEMPLATE"
	CodeUnknownKind       = "UNKNOWN_KIND"
	CodeBadRequest        = "BAD_REQUEST"
	CodeLockTimeout       = "LOCK_TIMEOUT"
	CodeCorruptRegistry   = "CORRUPT_REGISTRY"
	CodeInternal          = "INTERNAL"
)

// Classify maps an error from the workflow packages to an HTTP status and
// error code.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, proposal.ErrNotFound),
		errors.Is(err, registry.ErrEntryNotFound),
		errors.Is(err, audit.ErrEventNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, proposal.ErrNotPending):
		return http.StatusConflict, CodeNotPending
	case errors.Is(err, registry.ErrDuplicateCode):
		return http.StatusConflict, CodeDuplicateCode
	case errors.Is(err, workflow.ErrConflictingEntry):
		return http.StatusConflict, CodeConflictingEntry
	case errors.Is(err, workflow.ErrInvalidField),
		errors.Is(err, proposal.ErrPatchField),
		errors.Is(err, registry.ErrInvalidEntry):
		return http.StatusBadRequest, CodeInvalidField
	case errors.Is(err, workflow.ErrUnknownMaterial):
		return http.StatusUnprocessableEntity, CodeUnknownMaterial
	case errors.Is(err, nametemplate.ErrMissingValue):
		return http.StatusUnprocessableEntity, CodeMissingValue
	case errors.Is(err, nametemplate.ErrMalformedTemplate), errors.Is(err, nametemplate.ErrNoPlaceholders):
		return http.StatusUnprocessableEntity, CodeMalformedTemplate
	case errors.Is(err, registry.ErrUnknownKind):
		return http.StatusBadRequest, CodeUnknownKind
	case errors.Is(err, filelock.ErrLockTimeout):
		return http.StatusServiceUnavailable, CodeLockTimeout
	case errors.Is(err, registry.ErrCorruptRegistry), errors.Is(err, proposal.ErrCorruptLog):
		return http.StatusInternalServerError, CodeCorruptRegistry
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
