package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/s0up4200/movieflix/identity"
)

// fakeProvider is a hand-written identity.Provider
type fakeProvider struct {
	mu           sync.Mutex
	listeners    map[int]identity.Listener
	next         int
	current      *identity.Identity
	unsubscribed int

	user       identity.Identity
	signInErr  error
	signUpErr  error
	updateErr  error
	signOutErr error
	started    chan struct{}
	release    chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		listeners: make(map[int]identity.Listener),
		user:      identity.Identity{UID: "uid-1", Email: "ada@example.com", ProviderID: identity.ProviderPassword},
	}
}

func (f *fakeProvider) emit(id *identity.Identity) {
	f.mu.Lock()
	f.current = id
	listeners := make([]identity.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l(id)
	}
}

func (f *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (identity.Identity, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	if f.signInErr != nil {
		return identity.Identity{}, f.signInErr
	}
	u := f.user
	f.emit(&u)
	return u, nil
}

func (f *fakeProvider) SignInWithProvider(ctx context.Context, source oauth2.TokenSource) (identity.Identity, error) {
	if source == nil {
		return identity.Identity{}, &identity.AuthError{Op: "signInWithProvider", Code: identity.CodeFederatedCancelled, Message: "popup closed"}
	}
	u := f.user
	u.ProviderID = identity.ProviderGoogle
	f.emit(&u)
	return u, nil
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password string) (identity.Identity, error) {
	if f.signUpErr != nil {
		return identity.Identity{}, f.signUpErr
	}
	u := identity.Identity{UID: "uid-new", Email: email, ProviderID: identity.ProviderPassword}
	f.emit(&u)
	return u, nil
}

func (f *fakeProvider) UpdateProfile(ctx context.Context, target identity.Identity, attrs identity.Attributes) (identity.Identity, error) {
	if f.updateErr != nil {
		return identity.Identity{}, f.updateErr
	}
	if attrs.DisplayName != nil {
		target.DisplayName = *attrs.DisplayName
	}
	f.emit(&target)
	return target, nil
}

func (f *fakeProvider) SignOut(ctx context.Context) error {
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.emit(nil)
	return nil
}

func (f *fakeProvider) OnChange(listener identity.Listener) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.listeners[id] = listener
	current := f.current
	f.mu.Unlock()

	listener(current)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
		f.unsubscribed++
	}
}

func (f *fakeProvider) CurrentUser() *identity.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func newTestContext(t *testing.T, provider identity.Provider) *Context {
	t.Helper()
	c := New(provider, zerolog.Nop())
	require.NoError(t, c.Init())
	t.Cleanup(c.Close)
	return c
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	c := New(provider, zerolog.Nop())

	assert.ErrorIs(t, c.SignIn(ctx, "a@b.c", "pw"), ErrNotInitialized)
	assert.Equal(t, Unauthenticated, c.State())

	require.NoError(t, c.Init())
	assert.ErrorIs(t, c.Init(), ErrAlreadyInitialized)

	events, _ := c.Subscribe()
	assert.Equal(t, Unauthenticated, receive(t, events).State)

	c.Close()
	c.Close()
	assert.Equal(t, 1, provider.unsubscribed)

	_, ok := <-events
	assert.False(t, ok, "subscriber channel closed on Close")

	assert.ErrorIs(t, c.SignOut(ctx), ErrClosed)
	assert.ErrorIs(t, c.Init(), ErrClosed)

	late, unsubscribe := c.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	unsubscribe()
}

func TestInitMirrorsExistingUser(t *testing.T) {
	provider := newFakeProvider()
	u := provider.user
	provider.emit(&u)

	c := newTestContext(t, provider)
	assert.Equal(t, Authenticated, c.State())
	require.NotNil(t, c.Current())
	assert.Equal(t, "uid-1", c.Current().UID)
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t, newFakeProvider())
	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	require.NoError(t, c.SignIn(ctx, "ada@example.com", "secret1"))

	assert.Equal(t, Authenticated, c.State())
	require.NotNil(t, c.Current())
	assert.Equal(t, "ada@example.com", c.Current().Email)

	ev := receive(t, events)
	assert.Equal(t, Authenticated, ev.State)
	require.NotNil(t, ev.Identity)
	assert.Equal(t, "uid-1", ev.Identity.UID)
}

func TestSignInFailurePassesProviderMessage(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	provider.signInErr = &identity.AuthError{Op: "signIn", Code: identity.CodeWrongPassword, Message: "INVALID_PASSWORD"}
	c := newTestContext(t, provider)
	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	err := c.SignIn(ctx, "ada@example.com", "nope")
	require.Error(t, err)

	var authErr *identity.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "INVALID_PASSWORD", err.Error())
	assert.Equal(t, identity.CodeWrongPassword, authErr.Code)

	assert.Equal(t, Unauthenticated, c.State())
	assert.Nil(t, c.Current())
	assert.Equal(t, Unauthenticated, receive(t, events).State)
}

func TestPlainProviderErrorBecomesAuthError(t *testing.T) {
	provider := newFakeProvider()
	provider.signUpErr = errors.New("connection reset")
	c := newTestContext(t, provider)

	_, err := c.SignUp(context.Background(), "ada@example.com", "secret1")
	var authErr *identity.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "signUp", authErr.Op)
	assert.Equal(t, identity.CodeInternal, authErr.Code)
	assert.Equal(t, "connection reset", authErr.Error())
}

func TestAuthenticatingState(t *testing.T) {
	provider := newFakeProvider()
	provider.started = make(chan struct{})
	provider.release = make(chan struct{})
	c := newTestContext(t, provider)
	events, unsubscribe := c.Subscribe()
	defer unsubscribe()
	assert.Equal(t, Unauthenticated, receive(t, events).State)

	done := make(chan error, 1)
	go func() {
		done <- c.SignIn(context.Background(), "ada@example.com", "secret1")
	}()

	<-provider.started
	assert.Equal(t, Authenticating, c.State())
	assert.Equal(t, Authenticating, receive(t, events).State)

	close(provider.release)
	require.NoError(t, <-done)
	assert.Equal(t, Authenticated, c.State())
	assert.Equal(t, Authenticated, receive(t, events).State)
}

func TestSignInWithProvider(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t, newFakeProvider())

	err := c.SignInWithProvider(ctx, nil)
	assert.True(t, identity.HasCode(err, identity.CodeFederatedCancelled))
	assert.Equal(t, Unauthenticated, c.State())

	grant := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"})
	require.NoError(t, c.SignInWithProvider(ctx, grant))
	assert.Equal(t, identity.ProviderGoogle, c.Current().ProviderID)
}

func TestSignUp(t *testing.T) {
	c := newTestContext(t, newFakeProvider())

	created, err := c.SignUp(context.Background(), "new@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-new", created.UID)
	assert.Equal(t, "new@example.com", c.Current().Email)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	c := newTestContext(t, provider)
	require.NoError(t, c.SignIn(ctx, "ada@example.com", "secret1"))

	updated, err := c.UpdateProfile(ctx, *c.Current(), identity.Attributes{DisplayName: identity.String("ada")})
	require.NoError(t, err)
	assert.Equal(t, "ada", updated.DisplayName)
	assert.Equal(t, "ada", c.Current().DisplayName)

	provider.updateErr = &identity.AuthError{Op: "updateProfile", Code: identity.CodeTokenExpired, Message: "TOKEN_EXPIRED"}
	_, err = c.UpdateProfile(ctx, *c.Current(), identity.Attributes{DisplayName: identity.String("x")})
	var authErr *identity.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.IsStale())
	assert.Equal(t, "ada", c.Current().DisplayName)
}

func TestSignOutClearsLocalStateOnProviderFailure(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	c := newTestContext(t, provider)
	require.NoError(t, c.SignIn(ctx, "ada@example.com", "secret1"))

	provider.signOutErr = &identity.AuthError{Op: "signOut", Code: identity.CodeNetwork, Message: "network down"}
	err := c.SignOut(ctx)

	var authErr *identity.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "network down", err.Error())
	assert.Nil(t, c.Current())
	assert.Equal(t, Unauthenticated, c.State())
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t, newFakeProvider())
	require.NoError(t, c.SignIn(ctx, "ada@example.com", "secret1"))

	require.NoError(t, c.SignOut(ctx))
	assert.Nil(t, c.Current())
	assert.Equal(t, Unauthenticated, c.State())
}

func TestProviderDrivenChangesAreMirrored(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	c := newTestContext(t, provider)
	require.NoError(t, c.SignIn(ctx, "ada@example.com", "secret1"))

	// e.g. the provider expiring the session on its own
	provider.emit(nil)
	assert.Nil(t, c.Current())
	assert.Equal(t, Unauthenticated, c.State())
}

func TestSubscribeKeepsLatestEvent(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t, newFakeProvider())
	slow, unsubscribe := c.Subscribe()

	require.NoError(t, c.SignIn(ctx, "ada@example.com", "secret1"))
	require.NoError(t, c.SignOut(ctx))
	require.NoError(t, c.SignIn(ctx, "ada@example.com", "secret1"))

	ev := receive(t, slow)
	assert.Equal(t, Authenticated, ev.State)
	select {
	case extra := <-slow:
		t.Fatalf("unexpected buffered event %+v", extra)
	default:
	}

	unsubscribe()
	unsubscribe()
	_, ok := <-slow
	assert.False(t, ok)
}

func TestWithLocalDirectory(t *testing.T) {
	ctx := context.Background()
	dir, err := identity.NewDirectory([]byte("key"), zerolog.Nop(), identity.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	c := newTestContext(t, dir.NewProvider())

	created, err := c.SignUp(ctx, "grace@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, Authenticated, c.State())

	_, err = c.UpdateProfile(ctx, created, identity.Attributes{DisplayName: identity.String(identity.EmailLocalPart(created.Email))})
	require.NoError(t, err)
	assert.Equal(t, "grace", c.Current().DisplayName)

	require.NoError(t, c.SignOut(ctx))
	err = c.SignIn(ctx, "grace@example.com", "wrong-password")
	assert.True(t, identity.HasCode(err, identity.CodeWrongPassword))

	// a second browser is independent
	other := newTestContext(t, dir.NewProvider())
	require.NoError(t, other.SignIn(ctx, "grace@example.com", "secret1"))
	assert.Nil(t, c.Current())
	assert.Equal(t, "grace", other.Current().DisplayName)
}
