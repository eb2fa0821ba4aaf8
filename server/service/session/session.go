// Package session manages the portal login: signing in, restoring a stored
// token at startup and signing out.
//
// Every operation runs under a context that a later Login or Logout cancels.
// A canceled operation never writes the secret store or the in-memory state.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/plugin/portal"
	"github.com/hrygo/etlabplus/plugin/secret"
)

// Portal is the part of the portal client the session needs.
type Portal interface {
	Login(ctx context.Context, username, password string) (*portal.Token, error)
	Profile(ctx context.Context, token string) (*portal.Profile, json.RawMessage, error)
}

// DataCache is cleared on logout. *cache.Manager satisfies it.
type DataCache interface {
	ClearAll(ctx context.Context) bool
}

// State is the signed-in user.
type State struct {
	Token string `json:"-"`
	// User is the raw profile payload stored at login.
	User json.RawMessage `json:"user"`
	// ExpiresAt is zero when the token carries no expiry.
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Name returns the student name from the stored profile, if any.
func (s *State) Name() string {
	if s == nil || len(s.User) == 0 {
		return ""
	}
	var p portal.Profile
	if err := json.Unmarshal(s.User, &p); err != nil {
		return ""
	}
	return p.PersonalInfo.Name
}

// Expired reports whether the token expiry has passed.
func (s *State) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Service owns the session state.
type Service struct {
	portal  Portal
	secrets secret.Store
	cache   DataCache

	mu       sync.Mutex
	state    *State
	inflight map[uint64]context.CancelFunc
	nextOp   uint64
}

// NewService creates a session service. cache may be nil.
func NewService(p Portal, secrets secret.Store, cache DataCache) *Service {
	return &Service{
		portal:   p,
		secrets:  secrets,
		cache:    cache,
		inflight: make(map[uint64]context.CancelFunc),
	}
}

// begin registers an operation. When cancelOthers is set every operation
// already in flight is canceled first.
func (s *Service) begin(ctx context.Context, cancelOthers bool) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if cancelOthers {
		s.cancelLocked()
	}
	s.nextOp++
	id := s.nextOp
	s.inflight[id] = cancel
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
		cancel()
	}
}

func (s *Service) cancelLocked() {
	for id, cancel := range s.inflight {
		cancel()
		delete(s.inflight, id)
	}
}

// CancelAll cancels every operation in flight.
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// commit runs persist and stores state unless ctx is done. Both happen under
// the lock so a concurrent Logout either runs first and cancels ctx, or runs
// after and undoes the commit.
func (s *Service) commit(ctx context.Context, state *State, persist func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}
	if persist != nil {
		if err := persist(); err != nil {
			return err
		}
	}
	s.state = state
	return nil
}

func canceled(err error) error {
	if appErr := apperrors.FromContext(err); appErr != nil {
		return appErr
	}
	return apperrors.ContextCanceled(err)
}

// Current returns the signed-in state, nil when signed out.
func (s *Service) Current() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the current bearer token.
func (s *Service) Token() (string, error) {
	state := s.Current()
	if state == nil || state.Token == "" {
		return "", apperrors.Unauthorized("not signed in")
	}
	return state.Token, nil
}

// Login signs in with fresh credentials. The profile is always fetched with
// the token just issued, never with a stored one.
func (s *Service) Login(ctx context.Context, username, password string) (*State, error) {
	if username == "" || password == "" {
		return nil, apperrors.InvalidArgument("username and password are required")
	}
	ctx, done := s.begin(ctx, true)
	defer done()

	token, err := s.portal.Login(ctx, username, password)
	if err != nil {
		return nil, portalError(ctx, "login failed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	_, raw, err := s.portal.Profile(ctx, token.Token)
	if err != nil {
		return nil, portalError(ctx, "profile fetch failed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	state := &State{Token: token.Token, User: raw, ExpiresAt: expiry(token)}
	err = s.commit(ctx, state, func() error {
		if err := s.secrets.Set(ctx, secret.KeyToken, token.Token); err != nil {
			return apperrors.StorageFailure("failed to store token", err)
		}
		if err := s.secrets.Set(ctx, secret.KeyUser, string(raw)); err != nil {
			return apperrors.StorageFailure("failed to store user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("signed in", slog.String("username", token.Username))
	return state, nil
}

// Restore validates a stored token by fetching the profile with it. It
// returns nil, nil when nothing is stored. A token the portal rejects with a
// 4xx status is removed from storage. A canceled check, a network failure or
// a 5xx leaves it in place.
func (s *Service) Restore(ctx context.Context) (*State, error) {
	ctx, done := s.begin(ctx, false)
	defer done()

	token, hasToken, err := s.secrets.Get(ctx, secret.KeyToken)
	if err != nil {
		return nil, apperrors.StorageFailure("failed to read token", err)
	}
	user, hasUser, err := s.secrets.Get(ctx, secret.KeyUser)
	if err != nil {
		return nil, apperrors.StorageFailure("failed to read user", err)
	}
	if !hasToken || !hasUser {
		return nil, nil
	}

	if _, _, err := s.portal.Profile(ctx, token); err != nil {
		if ctx.Err() != nil {
			return nil, canceled(ctx.Err())
		}
		var se *portal.StatusError
		if !errors.As(err, &se) || se.Code >= 500 {
			return nil, apperrors.ServiceUnavailable("could not validate stored session", err)
		}
		slog.Info("stored session rejected, clearing", slog.Int("status", se.Code))
		if clearErr := s.clearSecrets(ctx); clearErr != nil {
			slog.Warn("failed to clear rejected session", slog.String("error", clearErr.Error()))
		}
		return nil, apperrors.Unauthorized("stored session is no longer valid")
	}

	state := &State{Token: token, User: json.RawMessage(user)}
	if exp, ok := TokenExpiry(token); ok {
		state.ExpiresAt = exp
	}
	if err := s.commit(ctx, state, nil); err != nil {
		return nil, err
	}
	return state, nil
}

// Logout cancels in-flight work, deletes the stored credentials and clears
// the cached datasets.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.cancelLocked()
	s.state = nil
	s.mu.Unlock()

	err := s.clearSecrets(ctx)
	if s.cache != nil && !s.cache.ClearAll(ctx) {
		slog.Warn("failed to clear cached data on logout")
	}
	if err != nil {
		return apperrors.StorageFailure("failed to delete credentials", err)
	}
	slog.Info("signed out")
	return nil
}

func (s *Service) clearSecrets(ctx context.Context) error {
	if err := s.secrets.Delete(ctx, secret.KeyToken); err != nil {
		return err
	}
	return s.secrets.Delete(ctx, secret.KeyUser)
}

// portalError classifies a portal failure.
func portalError(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil {
		return canceled(ctx.Err())
	}
	if portal.IsUnauthorized(err) {
		return apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, msg)
	}
	var se *portal.StatusError
	if errors.As(err, &se) {
		return apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, msg).WithContext("status", se.Code)
	}
	return apperrors.ServiceUnavailable(msg, err)
}

func expiry(token *portal.Token) time.Time {
	if token.ExpiresAt > 0 {
		return time.UnixMilli(token.ExpiresAt)
	}
	if exp, ok := TokenExpiry(token.Token); ok {
		return exp
	}
	return time.Time{}
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The client never holds the signing key; the portal remains the authority.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
