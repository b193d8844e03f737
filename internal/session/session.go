// Package session holds the process-wide authentication state of the console:
// who is logged in, with which bearer token and role. The state is persisted
// through a kvstore.Store so it survives restarts, and every transition is
// published to subscribers as an immutable snapshot.
package session

import (
	"encoding/json"
	"strings"
)

// Persisted entry names. All three are written and removed together.
const (
	KeyToken = "token"
	KeyUser  = "user"
	KeyRole  = "role"
)

// Role identifiers issued by the backend. The set is open; the store never
// validates a role against it.
const (
	RoleSuperuser   = "superuser"
	RoleAdmin       = "admin"
	RoleSecretaria  = "secretaria"
	RoleMedico      = "medico"
	RolePaciente    = "paciente"
	RoleDispensario = "dispensario"
)

// FallbackDisplayName is shown when the user object carries no usable name.
const FallbackDisplayName = "Usuario"

// State is the coarse lifecycle position of the store.
type State int

const (
	StateInitializing State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Session is one snapshot of the authentication state. Token, User and Role
// are either all set or all empty.
type Session struct {
	Token   string          `json:"token,omitempty"`
	User    json.RawMessage `json:"user,omitempty"`
	Role    string          `json:"role,omitempty"`
	Loading bool            `json:"loading"`
}

// Authenticated reports whether the snapshot holds a logged-in principal.
func (s Session) Authenticated() bool {
	return !s.Loading && s.Token != ""
}

// State derives the lifecycle state from the snapshot.
func (s Session) State() State {
	switch {
	case s.Loading:
		return StateInitializing
	case s.Token != "":
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// DisplayName reads a human label from the user object, trying the field
// names the backend has been seen to use.
func (s Session) DisplayName() string {
	for _, field := range []string{"nombre", "name", "username", "email"} {
		if v := s.userString(field); v != "" {
			return v
		}
	}
	return FallbackDisplayName
}

// Username returns the login name of the user, or "" when absent.
func (s Session) Username() string {
	if v := s.userString("username"); v != "" {
		return v
	}
	return s.userString("email")
}

func (s Session) userString(field string) string {
	if len(s.User) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(s.User, &fields); err != nil {
		return ""
	}
	v, ok := fields[field].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (s Session) clone() Session {
	if s.User != nil {
		u := make(json.RawMessage, len(s.User))
		copy(u, s.User)
		s.User = u
	}
	return s
}
