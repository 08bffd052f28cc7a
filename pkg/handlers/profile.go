package handlers

import (
	"net/http"

	"meeting-todos-backend/pkg/utils"
)

// Profile GET /api/profile
func Profile(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	utils.WriteSuccessResponse(w, s.Profile)
}
