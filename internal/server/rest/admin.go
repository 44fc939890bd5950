package rest

import (
	"net/http"

	"github.com/dmitrijs2005/contactkeeper/internal/server/services"
)

func (s *Server) ChangeRole(w http.ResponseWriter, r *http.Request, _ *services.Identity) {
	userID, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validate(req); err != nil {
		s.fail(w, r, err)
		return
	}

	profile, err := s.users.ChangeRole(r.Context(), userID, req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// RevokeSessions drops the target user's refresh token. Access tokens
// already issued stay valid until they expire.
func (s *Server) RevokeSessions(w http.ResponseWriter, r *http.Request, admin *services.Identity) {
	userID, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.users.RevokeSessions(r.Context(), userID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info(r.Context(), "sessions revoked", "user_id", userID, "by", admin.Subject)
	w.WriteHeader(http.StatusNoContent)
}
