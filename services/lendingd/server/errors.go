package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"remitlend/native/common"
)

func toHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, common.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrOwnershipMismatch):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInsufficientBalance),
		errors.Is(err, common.ErrInsufficientLiquidity),
		errors.Is(err, common.ErrMaxUtilizationExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrInvalidState),
		errors.Is(err, common.ErrAlreadyInitialized),
		errors.Is(err, common.ErrAlreadyStaked),
		errors.Is(err, common.ErrNotStaked):
		return http.StatusConflict
	case errors.Is(err, common.ErrModulePaused), errors.Is(err, common.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the stable machine-readable name of the error kind.
func errorCode(err error) string {
	if kind := common.Kind(err); kind != nil {
		return strings.ReplaceAll(kind.Error(), " ", "_")
	}
	return "internal"
}

func writeLedgerError(w http.ResponseWriter, err error) {
	status := toHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message, "code": errorCode(err)})
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprintf(w, "{\"error\":%q}", "marshal response")
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
