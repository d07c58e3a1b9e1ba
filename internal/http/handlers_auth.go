package http

import (
	"net/http"

	"carteira/internal/auth"
	"carteira/internal/core"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type sessionResponse struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, true)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, false)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, signUp bool) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.SignIn(r.Context(), auth.Credentials{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		SignUp:   signUp,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if signUp {
		status = http.StatusCreated
	}
	var user core.User
	if u := sess.Store.User(); u != nil {
		user = *u
	}
	writeJSON(w, status, sessionResponse{Token: sess.Token, User: user})
}

// handleSignOut is idempotent: unknown tokens also get 204.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		s.sessions.SignOut(r.Context(), token)
	}
	w.WriteHeader(http.StatusNoContent)
}
