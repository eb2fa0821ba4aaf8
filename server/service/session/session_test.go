package session

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/plugin/portal"
	"github.com/hrygo/etlabplus/plugin/secret"
)

const profileJSON = `{"personal_info": {"Name": "Asha"}}`

type fakePortal struct {
	loginErr   error
	profileErr error
	// blockLogin makes Login wait for its context and signal on started.
	blockLogin bool
	started    chan struct{}
	// onProfile runs before Profile returns.
	onProfile func()
}

func (f *fakePortal) Login(ctx context.Context, username, _ string) (*portal.Token, error) {
	if f.blockLogin {
		f.started <- struct{}{}
		<-ctx.Done()
		return nil, errors.Wrap(ctx.Err(), "request to /app/login failed")
	}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &portal.Token{Token: "tok-" + username, Username: username, ExpiresAt: 1736150400000}, nil
}

func (f *fakePortal) Profile(ctx context.Context, _ string) (*portal.Profile, json.RawMessage, error) {
	if f.onProfile != nil {
		f.onProfile()
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "request to /app/profile failed")
	}
	if f.profileErr != nil {
		return nil, nil, f.profileErr
	}
	p := &portal.Profile{}
	p.PersonalInfo.Name = "Asha"
	return p, json.RawMessage(profileJSON), nil
}

type fakeCache struct{ cleared int }

func (c *fakeCache) ClearAll(context.Context) bool {
	c.cleared++
	return true
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("portal-key"))
	require.NoError(t, err)
	return token
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	secrets := secret.NewMockStore()
	svc := NewService(&fakePortal{}, secrets, nil)

	state, err := svc.Login(ctx, "224789", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-224789", state.Token)
	assert.Equal(t, "Asha", state.Name())
	assert.Equal(t, time.UnixMilli(1736150400000), state.ExpiresAt)
	assert.Same(t, state, svc.Current())

	token, ok, err := secrets.Get(ctx, secret.KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-224789", token)
	user, _, _ := secrets.Get(ctx, secret.KeyUser)
	assert.JSONEq(t, profileJSON, user)

	current, err := svc.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-224789", current)
}

func TestLogin_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingCredentials", func(t *testing.T) {
		svc := NewService(&fakePortal{}, secret.NewMockStore(), nil)
		_, err := svc.Login(ctx, "", "pw")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
	})

	t.Run("Rejected", func(t *testing.T) {
		secrets := secret.NewMockStore()
		svc := NewService(&fakePortal{loginErr: &portal.StatusError{Endpoint: portal.EndpointLogin, Code: http.StatusUnauthorized}}, secrets, nil)
		_, err := svc.Login(ctx, "u", "bad")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
		assert.Equal(t, 0, secrets.Len())
		assert.Nil(t, svc.Current())
	})

	t.Run("PortalDown", func(t *testing.T) {
		svc := NewService(&fakePortal{profileErr: errors.New("connection refused")}, secret.NewMockStore(), nil)
		_, err := svc.Login(ctx, "u", "pw")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable))
	})

	t.Run("StorageFailure", func(t *testing.T) {
		secrets := secret.NewMockStore()
		secrets.Err = errors.New("disk full")
		svc := NewService(&fakePortal{}, secrets, nil)
		_, err := svc.Login(ctx, "u", "pw")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorageFailure))
		assert.Nil(t, svc.Current())
	})
}

func TestLogin_CanceledDoesNotCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	secrets := secret.NewMockStore()
	svc := NewService(&fakePortal{onProfile: cancel}, secrets, nil)

	_, err := svc.Login(ctx, "u", "pw")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextCanceled))
	assert.Equal(t, 0, secrets.Len())
	assert.Nil(t, svc.Current())
}

func TestLogin_SupersedesInFlight(t *testing.T) {
	blocking := &fakePortal{blockLogin: true, started: make(chan struct{})}
	secrets := secret.NewMockStore()
	svc := NewService(blocking, secrets, nil)

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Login(context.Background(), "first", "pw")
		firstErr <- err
	}()
	<-blocking.started

	// The second login swaps in a non-blocking portal.
	svc.portal = &fakePortal{}
	state, err := svc.Login(context.Background(), "second", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-second", state.Token)

	select {
	case err := <-firstErr:
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextCanceled))
	case <-time.After(5 * time.Second):
		t.Fatal("first login was not canceled")
	}
	assert.Equal(t, "tok-second", svc.Current().Token)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	exp := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	stored := signedToken(t, jwt.MapClaims{"sub": "224789", "exp": exp.Unix()})

	seed := func(t *testing.T) *secret.MockStore {
		t.Helper()
		secrets := secret.NewMockStore()
		require.NoError(t, secrets.Set(ctx, secret.KeyToken, stored))
		require.NoError(t, secrets.Set(ctx, secret.KeyUser, profileJSON))
		return secrets
	}

	t.Run("NothingStored", func(t *testing.T) {
		svc := NewService(&fakePortal{}, secret.NewMockStore(), nil)
		state, err := svc.Restore(ctx)
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("Valid", func(t *testing.T) {
		svc := NewService(&fakePortal{}, seed(t), nil)
		state, err := svc.Restore(ctx)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, stored, state.Token)
		assert.True(t, exp.Equal(state.ExpiresAt))
		assert.False(t, state.Expired(exp.Add(-time.Second)))
		assert.True(t, state.Expired(exp))
	})

	t.Run("RejectedIsCleared", func(t *testing.T) {
		secrets := seed(t)
		svc := NewService(&fakePortal{profileErr: &portal.StatusError{Code: http.StatusUnauthorized}}, secrets, nil)
		_, err := svc.Restore(ctx)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
		assert.Equal(t, 0, secrets.Len())
	})

	t.Run("ServerErrorKeepsToken", func(t *testing.T) {
		secrets := seed(t)
		svc := NewService(&fakePortal{profileErr: &portal.StatusError{Code: http.StatusServiceUnavailable}}, secrets, nil)
		_, err := svc.Restore(ctx)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable))
		assert.Equal(t, 2, secrets.Len())
	})

	t.Run("CanceledKeepsToken", func(t *testing.T) {
		secrets := seed(t)
		cctx, cancel := context.WithCancel(ctx)
		svc := NewService(&fakePortal{onProfile: cancel}, secrets, nil)
		_, err := svc.Restore(cctx)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextCanceled))
		assert.Equal(t, 2, secrets.Len())
		assert.Nil(t, svc.Current())
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	secrets := secret.NewMockStore()
	cache := &fakeCache{}
	svc := NewService(&fakePortal{}, secrets, cache)

	_, err := svc.Login(ctx, "u", "pw")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx))
	assert.Nil(t, svc.Current())
	assert.Equal(t, 0, secrets.Len())
	assert.Equal(t, 1, cache.cleared)

	_, err = svc.Token()
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	got, ok := TokenExpiry(signedToken(t, jwt.MapClaims{"exp": exp.Unix()}))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = TokenExpiry(signedToken(t, jwt.MapClaims{"sub": "x"}))
	assert.False(t, ok)

	_, ok = TokenExpiry("not-a-jwt")
	assert.False(t, ok)
}
