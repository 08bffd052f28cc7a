package handlers

import (
	"net/http"

	chiRoute "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"meeting-todos-backend/pkg/models"
	"meeting-todos-backend/pkg/store"
	"meeting-todos-backend/pkg/utils"
)

// MeetingsHandler 会议纪要
type MeetingsHandler struct {
	meetings *store.Meetings
	logger   *zap.Logger
}

func NewMeetingsHandler(st *store.Store, logger *zap.Logger) *MeetingsHandler {
	return &MeetingsHandler{meetings: st.Meetings, logger: logger}
}

// GET /api/meetings
func (h *MeetingsHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	meetings, err := h.meetings.List(r.Context(), s)
	if err != nil {
		writeError(w, h.logger, err, "meeting notes", "load")
		return
	}
	if meetings == nil {
		meetings = []models.MeetingNote{}
	}
	utils.WriteSuccessResponse(w, meetings)
}

// POST /api/meetings
func (h *MeetingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req models.NewMeetingNote
	if !decodeBody(w, r, &req) {
		return
	}
	orgID, ok := resolveOrganisation(w, s, req.OrganisationID)
	if !ok {
		return
	}
	req.OrganisationID = orgID

	id, err := h.meetings.Create(r.Context(), s, req)
	if err != nil {
		writeError(w, h.logger, err, "meeting note", "create")
		return
	}
	h.writeMeeting(w, r, s, id, http.StatusCreated)
}

// GET /api/meetings/{id}
func (h *MeetingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	h.writeMeeting(w, r, s, chiRoute.URLParam(r, "id"), http.StatusOK)
}

// PATCH /api/meetings/{id}
func (h *MeetingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	var patch models.MeetingPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		utils.WriteBadRequestResponse(w, "No fields to update")
		return
	}
	if patch.OrganisationID != nil {
		if _, ok := resolveOrganisation(w, s, *patch.OrganisationID); !ok {
			return
		}
	}

	id := chiRoute.URLParam(r, "id")
	if err := h.meetings.Update(r.Context(), s, id, patch); err != nil {
		writeError(w, h.logger, err, "meeting note", "update")
		return
	}
	h.writeMeeting(w, r, s, id, http.StatusOK)
}

// DELETE /api/meetings/{id}
func (h *MeetingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := h.meetings.Delete(r.Context(), s, chiRoute.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err, "meeting note", "delete")
		return
	}
	utils.WriteNoContentResponse(w)
}

func (h *MeetingsHandler) writeMeeting(w http.ResponseWriter, r *http.Request, scope store.Scope, id string, status int) {
	meeting, err := h.meetings.Get(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err, "meeting note", "load")
		return
	}
	utils.WriteJSONResponse(w, status, meeting)
}
