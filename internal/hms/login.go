package hms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hms/hms-console/internal/platform/apiclient"
	"github.com/hms/hms-console/internal/platform/envelope"
	"github.com/hms/hms-console/internal/session"
)

// InvalidEmailMessage replaces empty or malformed-request style login
// failures.
const InvalidEmailMessage = "Correo electrónico inválido"

var (
	// ErrNoToken is returned when a successful login reply carries no token.
	ErrNoToken = errors.New("login response carried no token")

	// ErrNoRole is returned when a successful login reply carries no role.
	ErrNoRole = errors.New("login response carried no role")
)

// LoginError is what Login returns on failure. Message is ready to show to
// the user; Err is the underlying cause.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string { return e.Message }
func (e *LoginError) Unwrap() error { return e.Err }

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginPayload accepts both English and Spanish field names.
type loginPayload struct {
	Token   string          `json:"token"`
	User    json.RawMessage `json:"user"`
	Usuario json.RawMessage `json:"usuario"`
	Role    string          `json:"role"`
	Rol     string          `json:"rol"`
}

func (p loginPayload) user() json.RawMessage {
	if len(p.User) > 0 {
		return p.User
	}
	return p.Usuario
}

func (p loginPayload) role() string {
	if p.Role != "" {
		return p.Role
	}
	return p.Rol
}

// Login authenticates against the backend and, on success, stores the
// session. If the session could not be persisted the returned session is
// still live in memory and the error says so.
func (a *API) Login(ctx context.Context, email, password string) (session.Session, error) {
	body, err := apiclient.MarshalJSON(loginRequest{Email: email, Password: password})
	if err != nil {
		return session.Session{}, err
	}

	resp, err := a.client.Request(ctx, "/login", apiclient.Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return session.Session{}, loginError(err)
	}
	if resp.Kind != apiclient.KindJSON {
		return session.Session{}, &LoginError{Message: ErrUnexpectedBinary.Error(), Err: ErrUnexpectedBinary}
	}

	env, err := envelope.Decode(resp.JSON)
	if err != nil {
		return session.Session{}, loginError(err)
	}
	if err := env.Err(); err != nil {
		return session.Session{}, loginError(err)
	}

	payload, err := decodeLoginPayload(env, resp.JSON)
	if err != nil {
		return session.Session{}, loginError(err)
	}
	if payload.Token == "" {
		return session.Session{}, &LoginError{Message: ErrNoToken.Error(), Err: ErrNoToken}
	}
	if payload.role() == "" {
		return session.Session{}, &LoginError{Message: ErrNoRole.Error(), Err: ErrNoRole}
	}

	user := payload.user()
	if len(user) == 0 {
		user = json.RawMessage("{}")
	}

	if err := a.session.Login(ctx, payload.Token, user, payload.role()); err != nil {
		a.logger.Warn().Err(err).Msg("logged in but session not saved")
		return a.session.Current(), fmt.Errorf("session not saved: %w", err)
	}
	return a.session.Current(), nil
}

// decodeLoginPayload reads token/user/role from the envelope data when it is
// an object, falling back to the top level of the reply.
func decodeLoginPayload(env envelope.Envelope, raw json.RawMessage) (loginPayload, error) {
	var p loginPayload
	if env.Outcome != envelope.OutcomeBare {
		if d, err := envelope.DecodeData[loginPayload](env); err == nil && d.Token != "" {
			return d, nil
		}
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode login response: %w", err)
	}
	return p, nil
}

func loginError(err error) *LoginError {
	msg := err.Error()

	var herr *apiclient.HTTPError
	isHTTP := errors.As(err, &herr)
	var envErr *envelope.Error
	isEnv := errors.As(err, &envErr)

	if (isHTTP || isEnv) && isMalformedRequestMessage(msg) {
		msg = InvalidEmailMessage
	}
	return &LoginError{Message: msg, Err: err}
}

func isMalformedRequestMessage(msg string) bool {
	m := strings.ToLower(strings.TrimSpace(msg))
	if m == "" || m == strings.ToLower(apiclient.StatusMessage(http.StatusBadRequest)) ||
		m == strings.ToLower(envelope.DefaultFailureMessage) {
		return true
	}
	for _, s := range []string{"bad request", "malformed", "solicitud incorrecta"} {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

// Logout clears the session.
func (a *API) Logout(ctx context.Context) error {
	return a.session.Logout(ctx)
}
