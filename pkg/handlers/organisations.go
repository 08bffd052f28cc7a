package handlers

import (
	"net/http"
	"strings"

	chiRoute "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/models"
	"meeting-todos-backend/pkg/store"
	"meeting-todos-backend/pkg/utils"
)

// OrganisationsHandler 组织
type OrganisationsHandler struct {
	store  *store.Store
	logger *zap.Logger
}

func NewOrganisationsHandler(st *store.Store, logger *zap.Logger) *OrganisationsHandler {
	return &OrganisationsHandler{store: st, logger: logger}
}

// GET /api/organisations
func (h *OrganisationsHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	orgs := s.Profile.OrganisationsData
	if orgs == nil {
		orgs = []models.Organisation{}
	}
	utils.WriteSuccessResponse(w, orgs)
}

// POST /api/organisations
func (h *OrganisationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req models.CreateOrganisationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	orgID, err := h.store.Organisations.Create(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		writeError(w, h.logger, err, "organisation", "create")
		return
	}
	if err := h.store.Users.AddOrganisation(r.Context(), s.UserID(), orgID); err != nil {
		writeError(w, h.logger, err, "organisation", "join")
		return
	}

	h.writeOrganisation(w, r, orgID, http.StatusCreated)
}

// PATCH /api/organisations/{id}
func (h *OrganisationsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	orgID := chiRoute.URLParam(r, "id")
	if !s.Profile.HasOrganisation(orgID) {
		utils.WriteForbiddenResponse(w, "Not a member of organisation")
		return
	}
	var req models.CreateOrganisationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.store.Organisations.Rename(r.Context(), orgID, strings.TrimSpace(req.Name)); err != nil {
		writeError(w, h.logger, err, "organisation", "rename")
		return
	}
	h.writeOrganisation(w, r, orgID, http.StatusOK)
}

func (h *OrganisationsHandler) writeOrganisation(w http.ResponseWriter, r *http.Request, orgID string, status int) {
	org, err := h.store.Organisations.Get(r.Context(), orgID)
	if err == nil && org == nil {
		err = database.ErrNotFound
	}
	if err != nil {
		writeError(w, h.logger, err, "organisation", "load")
		return
	}
	utils.WriteJSONResponse(w, status, org)
}
