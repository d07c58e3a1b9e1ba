package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/session"
)

// NoticeHeader carries write-through failures from earlier requests of the
// same session, RFC 2047 encoded.
const NoticeHeader = "X-Carteira-Notice"

const maxBodyBytes = 64 << 10

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ctxKey struct{}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(ctxKey{}).(*session.Session)
	return s
}

// requireSession resolves the bearer token and attaches pending notices of
// the session to the response.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r.Context(), bearerToken(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		for _, n := range sess.Store.DrainNotices() {
			w.Header().Add(NoticeHeader, mime.QEncoding.Encode("utf-8", n.Message()))
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, sess)
		ctx = log.WithContext(ctx, log.FromContext(ctx).With(log.FieldUserID, sess.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case core.IsValidation(err):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, core.ErrNoActiveUser):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, core.ErrEmailAlreadyInUse):
		return http.StatusConflict, "email_in_use"
	case errors.Is(err, core.ErrWeakPassword):
		return http.StatusUnprocessableEntity, "weak_password"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, core.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := core.UserMessage(err)
	var bad badRequestError
	if errors.As(err, &bad) {
		msg = bad.msg
	}
	if errors.Is(err, core.ErrNotFound) {
		msg = "Recurso não encontrado."
	}

	logger := log.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", "error", err, "status", status)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", "error", err, "status", status)
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

var errBadRequest = errors.New("bad request")

type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }
func (e badRequestError) Unwrap() error { return errBadRequest }

func badRequest(format string, args ...any) error {
	return badRequestError{msg: fmt.Sprintf(format, args...)}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("Corpo da requisição inválido: %v", err)
	}
	return nil
}
