// Package httptransport is the thin HTTP layer. Handlers decode, delegate
// to the services, and translate coded errors; business logic stays out.
package httptransport

import (
	"encoding/json"
	"net/http"

	dErrors "recall/pkg/domainerrors"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError translates a coded error into a JSON envelope. Extra fields
// merge into the envelope, which the verification endpoints use to return
// the session's state alongside the failure.
func writeError(w http.ResponseWriter, err error, extra map[string]any) {
	code := dErrors.CodeOf(err)
	body := map[string]any{
		"error":   string(code),
		"message": dErrors.MessageOf(err),
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, dErrors.ToHTTPStatus(code), body)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"), nil)
		return false
	}
	return true
}
