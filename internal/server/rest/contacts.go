package rest

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/contactkeeper/internal/server/services"
)

const (
	defaultBirthdayDays = 7
	maxBirthdayDays     = 365
)

func (s *Server) ListContacts(w http.ResponseWriter, r *http.Request, id *services.Identity) {
	skip, limit, err := paging(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	contacts, err := s.contacts.List(r.Context(), id.Subject, skip, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newContactList(contacts))
}

func (s *Server) SearchContacts(w http.ResponseWriter, r *http.Request, id *services.Identity) {
	query := r.URL.Query().Get("query")
	if query == "" {
		s.fail(w, r, invalidf("query is required"))
		return
	}
	skip, limit, err := paging(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	contacts, err := s.contacts.Search(r.Context(), id.Subject, query, skip, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newContactList(contacts))
}

func (s *Server) UpcomingBirthdays(w http.ResponseWriter, r *http.Request, id *services.Identity) {
	days, err := intParam(r, "days", defaultBirthdayDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if days < 0 || days > maxBirthdayDays {
		s.fail(w, r, invalidf("days must be between 0 and %d", maxBirthdayDays))
		return
	}

	contacts, err := s.contacts.UpcomingBirthdays(r.Context(), id.Subject, days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newContactList(contacts))
}

func (s *Server) CreateContact(w http.ResponseWriter, r *http.Request, id *services.Identity) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validate(req); err != nil {
		s.fail(w, r, err)
		return
	}

	c, err := s.contacts.Create(r.Context(), id.Subject, req.model())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newContactResponse(c))
}

func (s *Server) GetContact(w http.ResponseWriter, r *http.Request, id *services.Identity) {
	contactID, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.contacts.Get(r.Context(), id.Subject, contactID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newContactResponse(c))
}

func (s *Server) UpdateContact(w http.ResponseWriter, r *http.Request, id *services.Identity) {
	contactID, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validate(req); err != nil {
		s.fail(w, r, err)
		return
	}

	c := req.model()
	c.ID = contactID
	updated, err := s.contacts.Update(r.Context(), id.Subject, c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newContactResponse(updated))
}

func (s *Server) DeleteContact(w http.ResponseWriter, r *http.Request, id *services.Identity) {
	contactID, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.contacts.Delete(r.Context(), id.Subject, contactID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newContactResponse(c))
}

// paging reads skip and limit. Clamping to the allowed page size is done by
// the service.
func paging(r *http.Request) (int, int, error) {
	skip, err := intParam(r, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err := intParam(r, "limit", services.DefaultPageLimit)
	if err != nil {
		return 0, 0, err
	}
	if skip < 0 {
		return 0, 0, invalidf("skip must not be negative")
	}
	return skip, limit, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidf("%s must be an integer", name)
	}
	return v, nil
}
