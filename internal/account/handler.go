package account

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"annogate/internal/events"
	"annogate/internal/session"
	dErrors "annogate/pkg/domain-errors"
	"annogate/pkg/requestcontext"
)

// UseCases is the account use case surface the handler depends on.
type UseCases interface {
	Login(ctx context.Context, currentSessionID, username, password, host string) (*session.Session, string, error)
	Logout(ctx context.Context, sessionID string) error
	Register(ctx context.Context, username, email, password string) (*User, error)
	Activate(ctx context.Context, code, password string) (*User, *Activation, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, code, password string) (*User, error)
}

// Envelope is the form endpoint response body.
type Envelope struct {
	Status string            `json:"status"`
	Reason string            `json:"reason,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
	Model  map[string]any    `json:"model,omitempty"`
}

const (
	statusOkay    = "okay"
	statusFailure = "failure"

	maxFormBody = 64 << 10
)

// Handler serves the /auth form endpoints.
type Handler struct {
	service    UseCases
	notifier   events.Notifier
	logger     *slog.Logger
	sessionTTL time.Duration
	secure     bool
}

// NewHandler builds the handler. sessionTTL bounds the cookie lifetime.
func NewHandler(service UseCases, notifier events.Notifier, logger *slog.Logger, sessionTTL time.Duration) *Handler {
	return &Handler{
		service:    service,
		notifier:   notifier,
		logger:     logger,
		sessionTTL: sessionTTL,
	}
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/logout", h.HandleLogout)
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/activate", h.HandleActivate)
	r.Post("/auth/forgot", h.HandleForgotPassword)
	r.Post("/auth/reset", h.HandleResetPassword)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params, err := readParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	sess, persona, err := h.service.Login(ctx, requestcontext.SessionID(ctx), params["username"], params["password"], hostname(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.setCookie(w, sess.ID)
	h.notifier.Notify(ctx, events.LoginEvent{Request: r, User: persona})
	writeEnvelope(w, http.StatusOK, Envelope{Status: statusOkay, Model: map[string]any{"persona": persona}})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Logout(ctx, requestcontext.SessionID(ctx)); err != nil {
		h.fail(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	h.notifier.Notify(ctx, events.LogoutEvent{Request: r})
	writeEnvelope(w, http.StatusOK, Envelope{Status: statusOkay, Model: map[string]any{"persona": nil}})
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if _, err := h.service.Register(r.Context(), params["username"], params["email"], params["password"]); err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, Envelope{Status: statusOkay})
}

func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params, err := readParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	u, a, err := h.service.Activate(ctx, params["code"], params["password"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.notifier.Notify(ctx, events.RegistrationActivatedEvent{Request: r, UserID: u.ID.String(), Code: a.Code})
	writeEnvelope(w, http.StatusOK, Envelope{Status: statusOkay})
}

func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), params["email"]); err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, Envelope{Status: statusOkay, Reason: MsgResetSent})
}

func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.service.ResetPassword(r.Context(), params["code"], params["password"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, Envelope{
		Status: statusOkay,
		Reason: MsgResetDone,
		Model:  map[string]any{"username": u.Username},
	})
}

func (h *Handler) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	env := Envelope{Status: statusFailure}
	status := http.StatusInternalServerError

	de, ok := dErrors.As(err)
	if ok {
		status = dErrors.ToHTTPStatus(de.Code)
		env.Reason = de.Message
		if len(de.Fields) > 0 {
			env.Errors = de.Fields
		}
	}
	if !ok || de.Code == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "account request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		env.Reason = "Internal error."
		status = http.StatusInternalServerError
	}
	writeEnvelope(w, status, env)
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// readParams merges form values with a JSON object body. JSON wins.
func readParams(r *http.Request) (map[string]string, error) {
	params := map[string]string{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBody))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "Could not read request body.")
		}
		if err := r.ParseForm(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "Could not parse request.")
		}
		for k := range r.Form {
			params[k] = r.Form.Get(k)
		}
		if len(body) > 0 {
			var obj map[string]any
			if err := json.Unmarshal(body, &obj); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "Could not parse request body.")
			}
			for k, v := range obj {
				if s, ok := v.(string); ok {
					params[k] = s
				}
			}
		}
		return params, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxFormBody)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "Request body too large.")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "Could not parse request.")
	}
	for k := range r.Form {
		params[k] = r.Form.Get(k)
	}
	return params, nil
}

func hostname(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.Host); err == nil {
		return host
	}
	return r.Host
}
