package httptransport

import (
	"net/http"

	"recall/internal/activity"
	identitymodels "recall/internal/identity/models"
	"recall/internal/memory"
	"recall/internal/platform/middleware"
	dErrors "recall/pkg/domainerrors"
)

func (h *Handler) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	workspaceID := middleware.GetWorkspace(ctx)

	subjectID, err := h.resolver.Resolve(ctx, workspaceID, identitymodels.Hint{
		SubjectID: req.SubjectID,
		VisitorID: req.VisitorID,
		Email:     req.Email,
		SessionID: req.sessionID(),
		Phone:     req.Phone,
	})
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "identity resolution failed"), nil)
		return
	}

	contact := req.Contact
	if contact == "" {
		if req.Channel == "email" {
			contact = req.Email
		} else {
			contact = req.Phone
		}
	}

	challenge, err := h.verification.Request(ctx, workspaceID, req.sessionID(), subjectID, req.Channel, contact)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, challenge)
}

// handleVerifyOTP checks the code and, on success, returns the unlocked
// bootstrap payload inline so the agent speaks without a second roundtrip.
func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	workspaceID := middleware.GetWorkspace(ctx)
	sessionID := req.sessionID()

	subjectID, err := h.resolver.Resolve(ctx, workspaceID, identitymodels.Hint{
		SubjectID: req.SubjectID,
		VisitorID: req.VisitorID,
		Email:     req.Email,
		SessionID: sessionID,
		Phone:     req.Phone,
	})
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "identity resolution failed"), nil)
		return
	}

	state, err := h.verification.Verify(ctx, workspaceID, sessionID, subjectID, req.Code)
	if err != nil {
		writeError(w, err, map[string]any{"state": state})
		return
	}

	h.activity.Publish(ctx, activity.Event{
		Type:        activity.TypeSessionVerified,
		WorkspaceID: workspaceID,
		SubjectID:   subjectID,
		SessionID:   sessionID,
	})

	payload, err := h.memory.Bootstrap(ctx, workspaceID, memory.BootstrapRequest{
		SessionID: sessionID,
		AgentID:   req.AgentID,
		SubjectID: subjectID,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "post-verification bootstrap failed", "error", err.Error())
		writeJSON(w, http.StatusOK, map[string]any{"verified": true, "state": state})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"verified": true,
		"state":    state,
		"memory":   payload,
	})
}
