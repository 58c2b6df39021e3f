package httptransport

import (
	"net/http"

	"recall/internal/activity"
	"recall/internal/platform/middleware"
	"recall/internal/sessionctx"
	dErrors "recall/pkg/domainerrors"
)

func (h *Handler) handleContextSet(w http.ResponseWriter, r *http.Request) {
	var req contextSetRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "session_id is required"), nil)
		return
	}
	ctx := r.Context()
	workspaceID := middleware.GetWorkspace(ctx)

	updated, err := h.contexts.Apply(ctx, workspaceID, req.SessionID, sessionctx.Update{
		ChannelMode:     req.ChannelMode,
		VerifiedSubject: req.VerifiedSubject,
		HandoffReason:   req.HandoffReason,
	})
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "context update failed"), nil)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleHandoff records why a session is leaving the agent and emits the
// handoff event observers route on.
func (h *Handler) handleHandoff(w http.ResponseWriter, r *http.Request) {
	var req handoffRequest
	if !decode(w, r, &req) {
		return
	}
	sessionID := req.sessionID()
	if sessionID == "" {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "session_id is required"), nil)
		return
	}
	if req.Reason == "" {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "reason is required"), nil)
		return
	}
	ctx := r.Context()
	workspaceID := middleware.GetWorkspace(ctx)

	reason := req.Reason
	updated, err := h.contexts.Apply(ctx, workspaceID, sessionID, sessionctx.Update{
		HandoffReason: &reason,
	})
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "context update failed"), nil)
		return
	}

	data := map[string]any{"reason": req.Reason}
	if req.Target != "" {
		data["target"] = req.Target
	}
	for k, v := range req.Metadata {
		data[k] = v
	}
	h.activity.Publish(ctx, activity.Event{
		Type:        activity.TypeHandoff,
		WorkspaceID: workspaceID,
		SubjectID:   req.SubjectID,
		SessionID:   sessionID,
		Data:        data,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"dispatched": true,
		"context":    updated,
	})
}
