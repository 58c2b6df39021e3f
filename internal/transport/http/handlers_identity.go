package httptransport

import (
	"net/http"
	"time"

	"recall/internal/activity"
	identitymodels "recall/internal/identity/models"
	"recall/internal/memory"
	"recall/internal/platform/middleware"
	dErrors "recall/pkg/domainerrors"
	emailpkg "recall/pkg/email"
	phonepkg "recall/pkg/phone"
)

// handlePassthrough resolves whatever identifiers the caller has into the
// canonical subject id without touching memory.
func (h *Handler) handlePassthrough(w http.ResponseWriter, r *http.Request) {
	var req identifiers
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

	if subjectID != "" {
		h.activity.Publish(ctx, activity.Event{
			Type:        activity.TypeIdentityResolved,
			WorkspaceID: workspaceID,
			SubjectID:   subjectID,
			SessionID:   req.sessionID(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject_id": subjectID,
		"resolved":   subjectID != "",
	})
}

// handleSessionIdentity records the contact details observed on a session
// so later requests resolve without them.
func (h *Handler) handleSessionIdentity(w http.ResponseWriter, r *http.Request) {
	var req sessionIdentityRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "session_id is required"), nil)
		return
	}
	ctx := r.Context()
	workspaceID := middleware.GetWorkspace(ctx)

	subjectID := req.SubjectID
	if subjectID == "" {
		if subjectID = h.resolver.PhoneSubject(req.Phone); subjectID == "" {
			subjectID = emailpkg.Normalize(req.Email)
		}
	}

	identity := &identitymodels.SessionIdentity{
		WorkspaceID: workspaceID,
		SessionID:   req.SessionID,
		SubjectID:   subjectID,
		Phone:       phonepkg.Normalize(req.Phone),
		Email:       emailpkg.Normalize(req.Email),
		ChannelMode: req.ChannelMode,
		Metadata:    req.Metadata,
		UpdatedAt:   time.Now(),
	}
	if err := h.sessions.Upsert(ctx, identity); err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "session identity persist failed"), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"subject_id": subjectID,
	})
}

// handleValidate checks contact details without storing anything. Email
// near-misses come back with a suggested correction.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Phone == "" && req.Email == "" {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "phone or email is required"), nil)
		return
	}

	result := make(map[string]any, 2)
	if req.Phone != "" {
		result["phone"] = phonepkg.Validate(req.Phone)
	}
	if req.Email != "" {
		result["email"] = emailpkg.Validate(req.Email)
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePreload warms the caches for a caller we know is about to
// connect, so the first bootstrap is a local hit.
func (h *Handler) handlePreload(w http.ResponseWriter, r *http.Request) {
	var req identifiers
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	workspaceID := middleware.GetWorkspace(ctx)

	payload, err := h.memory.Bootstrap(ctx, workspaceID, memory.BootstrapRequest{
		SessionID: req.sessionID(),
		AgentID:   req.AgentID,
		SubjectID: req.SubjectID,
		VisitorID: req.VisitorID,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject_id": payload.SubjectID,
		"warmed":     payload.SubjectID != "",
	})
}
