package httpx

import (
	"errors"
	"net/http"

	"github.com/meridianpos/meridian/internal/shared"
)

// RespondError maps ledger errors to HTTP responses. The detail string carries
// the precise reason (which mapping is missing, which period is locked, what the
// outstanding balance is) since finance staff act on it directly.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInvalidFormat):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrUnbalancedEntry):
		Problem(w, http.StatusUnprocessableEntity, "Unbalanced Entry", err.Error())
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrAlreadyReconciled):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrPeriodLocked):
		Problem(w, http.StatusConflict, "Period Locked", err.Error())
	case errors.Is(err, shared.ErrInsufficientBalance):
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Balance", err.Error())
	case errors.Is(err, shared.ErrMissingAccountMapping):
		Problem(w, http.StatusPreconditionFailed, "Missing Account Mapping", err.Error())
	case errors.Is(err, shared.ErrDuplicateOverlap):
		Problem(w, http.StatusConflict, "Period Overlap", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
