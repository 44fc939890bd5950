package rest

import (
	"bytes"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/contactkeeper/internal/server/services"
)

const maxAvatarBytes = 5 << 20

func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validate(req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user.Profile())
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validate(req); err != nil {
		s.fail(w, r, err)
		return
	}

	pair, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validate(req); err != nil {
		s.fail(w, r, err)
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request, id *services.Identity) {
	if err := s.auth.Logout(r.Context(), id.Subject); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.fail(w, r, invalidf("token is required"))
		return
	}

	profile, err := s.auth.Verify(r.Context(), token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validate(req); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.auth.RequestVerification(r.Context(), req.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Message: "if the account exists and is unverified, a verification email has been sent"})
}

func (s *Server) PasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validate(req); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Message: "if the account exists, a password reset email has been sent"})
}

func (s *Server) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validate(req); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password has been reset"})
}

// Me returns the cached profile resolved while authenticating.
func (s *Server) Me(w http.ResponseWriter, r *http.Request, id *services.Identity) {
	allowed, retryAfter, err := s.meLimit.Allow(r.Context(), "me:"+id.Subject)
	if err != nil {
		// Limiter outages fail open.
		s.logger.Debug(r.Context(), "me rate limit skipped", "user_id", id.Subject, "error", err)
	} else if !allowed {
		s.rateLimited(w, int(math.Ceil(retryAfter.Seconds())))
		return
	}
	writeJSON(w, http.StatusOK, id.Profile)
}

func (s *Server) UpdateAvatar(w http.ResponseWriter, r *http.Request, id *services.Identity) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+(1<<20))

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, invalidf("file exceeds %d bytes", maxAvatarBytes))
			return
		}
		s.fail(w, r, invalidf("multipart field file is required"))
		return
	}
	defer file.Close()

	data, err := readAvatar(file)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	contentType := avatarContentType(header, data)
	if !strings.HasPrefix(contentType, "image/") {
		s.fail(w, r, invalidf("file must be an image, got %s", contentType))
		return
	}

	profile, err := s.users.UpdateAvatar(r.Context(), id.Subject, contentType, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func readAvatar(file multipart.File) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(file, maxAvatarBytes+1))
	if err != nil {
		return nil, err
	}
	if n > maxAvatarBytes {
		return nil, invalidf("file exceeds %d bytes", maxAvatarBytes)
	}
	if n == 0 {
		return nil, invalidf("file is empty")
	}
	return buf.Bytes(), nil
}

// avatarContentType trusts the sniffed type over the client header.
func avatarContentType(header *multipart.FileHeader, data []byte) string {
	sniffed := http.DetectContentType(data)
	if sniffed != "application/octet-stream" {
		return sniffed
	}
	return header.Header.Get("Content-Type")
}
