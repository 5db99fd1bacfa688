package api

import (
	"errors"
	"net/http"

	"github.com/kjannette/cryptovest-backend/internal/session"
	"github.com/kjannette/cryptovest-backend/internal/supabase"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in session.SignUpInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.Sessions.SignUp(r.Context(), in, clientIP(r))
	if err != nil {
		writeServiceError(w, r, err, "sign up failed")
		return
	}

	if res.Profile != nil {
		s.Dashboard.RecordProfile(*res.Profile)
	}

	status := http.StatusCreated
	if res.ConfirmationRequired {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.Sessions.SignIn(r.Context(), in.Email, in.Password, clientIP(r))
	if err != nil {
		// Supabase answers bad credentials with a 400.
		var sbErr *supabase.Error
		if errors.As(err, &sbErr) && sbErr.Status == http.StatusBadRequest {
			writeError(w, http.StatusUnauthorized, sbErr.Message)
			return
		}
		writeServiceError(w, r, err, "sign in failed")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := *session.FromContext(r.Context())
	sess.AccessToken = ""
	writeJSON(w, http.StatusOK, sess)
}

// handleSignOut always answers 204: per-user state is torn down even when
// Supabase fails to revoke the token.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := s.Sessions.SignOut(r.Context(), sess); err != nil {
		log.WithError(err).WithField("user_id", sess.UserID).Warn("Upstream sign out failed")
	}
	w.WriteHeader(http.StatusNoContent)
}

type recoverRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var in recoverRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Sessions.RequestPasswordReset(r.Context(), in.Email); err != nil {
		writeServiceError(w, r, err, "Failed to send reset link.")
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Message: "Reset link sent! Check your email."})
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var in passwordRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess := session.FromContext(r.Context())
	if err := s.Sessions.UpdatePassword(r.Context(), sess, in.Password, clientIP(r)); err != nil {
		writeServiceError(w, r, err, "failed to update password")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated! You can now log in."})
}
