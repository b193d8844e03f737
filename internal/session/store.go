package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hms/hms-console/internal/platform/kvstore"
)

var (
	// ErrCorruptUser is logged when the persisted user entry is not valid JSON.
	ErrCorruptUser = errors.New("stored user is not valid JSON")

	// ErrIncompleteSession is returned by Login when the token or role is
	// empty. Nothing is persisted or published in that case.
	ErrIncompleteSession = errors.New("session requires a token and a role")
)

// Store is the single source of truth for "is anyone logged in, as whom".
// Writes are serialised behind one mutex and every transition is published
// to subscribers as a copy, so readers never observe a partial session.
type Store struct {
	storage kvstore.Store
	logger  zerolog.Logger

	mu       sync.RWMutex
	current  Session
	restored bool
	closed   bool
	nextSub  int
	subs     map[int]chan Session
}

// NewStore creates a store in the initializing state. Call Restore once at
// startup and Close on shutdown.
func NewStore(storage kvstore.Store, logger zerolog.Logger) *Store {
	return &Store{
		storage: storage,
		logger:  logger.With().Str("component", "session").Logger(),
		current: Session{Loading: true},
		subs:    make(map[int]chan Session),
	}
}

// Restore reads the persisted token, user and role. When all three are
// present and the user parses as JSON the store becomes authenticated,
// otherwise unauthenticated. Only the first call has any effect. A storage
// error leaves the store logged out and is returned to the caller.
func (s *Store) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.restored {
		return nil
	}
	s.restored = true

	sess, err := s.load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("session restore failed, starting logged out")
		s.publishLocked(Session{})
		return err
	}
	s.publishLocked(sess)

	s.logger.Debug().
		Str("state", sess.State().String()).
		Str("role", sess.Role).
		Msg("session restored")
	return nil
}

func (s *Store) load(ctx context.Context) (Session, error) {
	token, hasToken, err := s.storage.Get(ctx, KeyToken)
	if err != nil {
		return Session{}, fmt.Errorf("read %s: %w", KeyToken, err)
	}
	user, hasUser, err := s.storage.Get(ctx, KeyUser)
	if err != nil {
		return Session{}, fmt.Errorf("read %s: %w", KeyUser, err)
	}
	role, hasRole, err := s.storage.Get(ctx, KeyRole)
	if err != nil {
		return Session{}, fmt.Errorf("read %s: %w", KeyRole, err)
	}

	if !hasToken || !hasUser || !hasRole || token == "" || user == "" || role == "" {
		return Session{}, nil
	}
	if !json.Valid([]byte(user)) {
		s.logger.Warn().Err(ErrCorruptUser).Msg("ignoring persisted session")
		return Session{}, nil
	}

	return Session{
		Token: token,
		User:  json.RawMessage(user),
		Role:  role,
	}, nil
}

// Login persists token, user and role and publishes an authenticated
// session. The inputs are trusted as-is. user may be any JSON-serialisable
// value, including json.RawMessage. A persistence failure is returned but the
// in-memory session is still published.
func (s *Store) Login(ctx context.Context, token string, user any, role string) error {
	if token == "" || role == "" {
		return ErrIncompleteSession
	}
	raw, err := marshalUser(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.restored = true

	var persistErr error
	for _, kv := range [][2]string{{KeyToken, token}, {KeyUser, string(raw)}, {KeyRole, role}} {
		if err := s.storage.Set(ctx, kv[0], kv[1]); err != nil {
			persistErr = fmt.Errorf("persist %s: %w", kv[0], err)
			break
		}
	}

	s.publishLocked(Session{Token: token, User: raw, Role: role})

	if persistErr != nil {
		s.logger.Error().Err(persistErr).Msg("session login not persisted")
		return persistErr
	}
	s.logger.Info().Str("role", role).Msg("logged in")
	return nil
}

func marshalUser(user any) (json.RawMessage, error) {
	switch u := user.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(u) {
			return nil, fmt.Errorf("serialize user: %w", ErrCorruptUser)
		}
		return append(json.RawMessage(nil), u...), nil
	case []byte:
		if !json.Valid(u) {
			return nil, fmt.Errorf("serialize user: %w", ErrCorruptUser)
		}
		return append(json.RawMessage(nil), u...), nil
	default:
		raw, err := json.Marshal(u)
		if err != nil {
			return nil, fmt.Errorf("serialize user: %w", err)
		}
		return raw, nil
	}
}

// Logout removes the persisted entries and publishes an empty session.
// Calling it while logged out is harmless.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.restored = true
	err := s.storage.Delete(ctx, KeyToken, KeyUser, KeyRole)
	s.publishLocked(Session{})

	if err != nil {
		s.logger.Error().Err(err).Msg("session logout not persisted")
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info().Msg("logged out")
	return nil
}

// Current returns the latest snapshot.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Token returns the bearer token of the current session, or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}

// Subscribe registers for every subsequent transition. The channel holds at
// most one pending snapshot; a slow reader only ever sees the latest one. The
// returned function unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Session, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Session, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Close disposes of the store: all subscriber channels are closed. The store
// keeps working for Current, Login and Logout afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// publishLocked replaces the current snapshot and notifies subscribers.
// Callers must hold s.mu for writing.
func (s *Store) publishLocked(next Session) {
	if next.Token == "" || next.Role == "" {
		next = Session{}
	}
	next.Loading = false
	s.current = next

	for _, ch := range s.subs {
		snap := next.clone()
		select {
		case ch <- snap:
		default:
			// drop the stale pending snapshot, keep the latest
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
