package httptransport

import (
	"net/http"

	"recall/internal/memory"
	"recall/internal/platform/middleware"
	dErrors "recall/pkg/domainerrors"
)

func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if !decode(w, r, &req) {
		return
	}
	workspaceID := middleware.GetWorkspace(r.Context())

	payload, err := h.memory.Bootstrap(r.Context(), workspaceID, memory.BootstrapRequest{
		SessionID:  req.sessionID(),
		AgentID:    req.AgentID,
		SubjectID:  req.SubjectID,
		VisitorID:  req.VisitorID,
		Email:      req.Email,
		Phone:      req.Phone,
		Query:      req.Query,
		TopK:       req.TopK,
		CallID:     req.CallID,
		Transcript: req.Transcript,
		Summary:    req.Summary,
		Facts:      req.Facts,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "bootstrap failed", "error", err.Error())
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decode(w, r, &req) {
		return
	}
	workspaceID := middleware.GetWorkspace(r.Context())

	payload, err := h.memory.Query(r.Context(), workspaceID, memory.QueryRequest{
		SessionID: req.sessionID(),
		AgentID:   req.AgentID,
		SubjectID: req.SubjectID,
		VisitorID: req.VisitorID,
		Email:     req.Email,
		Phone:     req.Phone,
		Query:     req.Query,
		TopK:      req.TopK,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "query failed", "error", err.Error())
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if !decode(w, r, &req) {
		return
	}
	h.upsert(w, r, req)
}

// handleTranscript is the transcript-first alias of upsert: the body must
// carry a transcript to mine.
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Transcript == "" {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "transcript is required"), nil)
		return
	}
	h.upsert(w, r, req)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request, req upsertRequest) {
	workspaceID := middleware.GetWorkspace(r.Context())

	result, err := h.memory.Upsert(r.Context(), workspaceID, memory.UpsertRequest{
		SessionID:    req.sessionID(),
		AgentID:      req.AgentID,
		SubjectID:    req.SubjectID,
		VisitorID:    req.VisitorID,
		Email:        req.Email,
		Phone:        req.Phone,
		CallID:       req.CallID,
		Transcript:   req.Transcript,
		Summary:      req.Summary,
		Sentiment:    req.Sentiment,
		Outcome:      req.Outcome,
		ActionItems:  req.ActionItems,
		Facts:        req.Facts,
		DeferLogging: req.DeferLogging,
		ForceSync:    req.ForceSync,
	})
	if err != nil {
		writeError(w, err, nil)
		return
	}

	status := http.StatusOK
	if result.Deferred {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}
