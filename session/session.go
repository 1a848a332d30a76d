// Package session holds the authenticated identity of one browser session and
// publishes every change to subscribers.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/s0up4200/movieflix/identity"
)

var (
	// ErrNotInitialized is returned by operations called before Init
	ErrNotInitialized = errors.New("session context not initialized")
	// ErrAlreadyInitialized is returned when Init is called twice
	ErrAlreadyInitialized = errors.New("session context already initialized")
	// ErrClosed is returned by operations called after Close
	ErrClosed = errors.New("session context closed")
)

// State is the authentication state of a session
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is published whenever the state or the current identity changes
type Event struct {
	State    State              `json:"state"`
	Identity *identity.Identity `json:"identity,omitempty"`
	At       time.Time          `json:"at"`
}

// Context mirrors the provider's identity-change stream into an observable
// current identity. The change stream handler is the only writer.
type Context struct {
	provider identity.Provider
	logger   zerolog.Logger

	mu          sync.RWMutex
	current     *identity.Identity
	state       State
	attempts    int
	initialized bool
	closed      bool
	unsubscribe func()
	subscribers map[int]chan Event
	nextID      int
}

// New creates a session context for the given provider instance
func New(provider identity.Provider, logger zerolog.Logger) *Context {
	return &Context{
		provider:    provider,
		logger:      logger.With().Str("component", "session").Logger(),
		subscribers: make(map[int]chan Event),
	}
}

// Init opens the provider change subscription
func (c *Context) Init() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.initialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	c.mu.Unlock()

	// OnChange delivers the current user synchronously, so subscribe outside the lock
	unsubscribe := c.provider.OnChange(c.mirror)

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.logger.Debug().Msg("Session subscription opened")
	return nil
}

// Close tears down the provider subscription and closes subscriber channels
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.logger.Debug().Msg("Session subscription closed")
}

// Current returns the signed-in identity, or nil
func (c *Context) Current() *identity.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyIdentity(c.current)
}

// State returns the authentication state
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe returns a channel of session events. Only the latest undelivered
// event is kept for a slow reader. The channel is closed by unsubscribe or Close.
func (c *Context) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subscribers[id] = ch
	ch <- c.eventLocked()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				close(sub)
				delete(c.subscribers, id)
			}
		})
	}
}

// SignIn signs in with email and password
func (c *Context) SignIn(ctx context.Context, email, password string) error {
	return c.authenticate("signIn", func() error {
		_, err := c.provider.SignInWithPassword(ctx, email, password)
		return err
	})
}

// SignInWithProvider signs in with a federated grant
func (c *Context) SignInWithProvider(ctx context.Context, source oauth2.TokenSource) error {
	return c.authenticate("signInWithProvider", func() error {
		_, err := c.provider.SignInWithProvider(ctx, source)
		return err
	})
}

// SignUp registers a new account; the provider signs it in
func (c *Context) SignUp(ctx context.Context, email, password string) (identity.Identity, error) {
	var created identity.Identity
	err := c.authenticate("signUp", func() error {
		var err error
		created, err = c.provider.SignUp(ctx, email, password)
		return err
	})
	if err != nil {
		return identity.Identity{}, err
	}
	return created, nil
}

// UpdateProfile applies attributes to the target identity
func (c *Context) UpdateProfile(ctx context.Context, target identity.Identity, attrs identity.Attributes) (identity.Identity, error) {
	if err := c.ready(); err != nil {
		return identity.Identity{}, err
	}

	updated, err := c.provider.UpdateProfile(ctx, target, attrs)
	if err != nil {
		authErr := asAuthError("updateProfile", err)
		c.logger.Warn().Err(authErr).Str("code", authErr.Code).Str("uid", target.UID).Msg("Profile update failed")
		return identity.Identity{}, authErr
	}

	c.logger.Info().Str("uid", updated.UID).Msg("Profile updated")
	return updated, nil
}

// SignOut clears the session. Local state is cleared even when the provider fails.
func (c *Context) SignOut(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}

	err := c.provider.SignOut(ctx)

	// the provider normally publishes nil itself; this covers a failed sign-out
	c.mirror(nil)

	if err != nil {
		authErr := asAuthError("signOut", err)
		c.logger.Warn().Err(authErr).Str("code", authErr.Code).Msg("Provider sign-out failed; local session cleared")
		return authErr
	}

	c.logger.Info().Msg("Signed out")
	return nil
}

func (c *Context) authenticate(op string, call func() error) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.beginAttempt()
	err := call()
	c.endAttempt()

	if err != nil {
		authErr := asAuthError(op, err)
		c.logger.Info().Str("op", op).Str("code", authErr.Code).Msg("Authentication failed")
		return authErr
	}

	if user := c.Current(); user != nil {
		c.logger.Info().Str("op", op).Str("uid", user.UID).Msg("Authenticated")
	}
	return nil
}

// mirror is the provider change handler
func (c *Context) mirror(user *identity.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if sameIdentity(c.current, user) && c.state == c.deriveLocked(user) {
		return
	}
	c.current = copyIdentity(user)
	c.transitionLocked()
	c.publishLocked()
}

func (c *Context) beginAttempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.transitionLocked() {
		c.publishLocked()
	}
}

func (c *Context) endAttempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts--
	if c.transitionLocked() {
		c.publishLocked()
	}
}

// transitionLocked recomputes the state and reports whether it changed
func (c *Context) transitionLocked() bool {
	next := c.deriveLocked(c.current)
	if next == c.state {
		return false
	}
	c.logger.Debug().Stringer("from", c.state).Stringer("to", next).Msg("Session state changed")
	c.state = next
	return true
}

func (c *Context) deriveLocked(user *identity.Identity) State {
	switch {
	case user != nil:
		return Authenticated
	case c.attempts > 0:
		return Authenticating
	default:
		return Unauthenticated
	}
}

func (c *Context) eventLocked() Event {
	return Event{State: c.state, Identity: copyIdentity(c.current), At: time.Now()}
}

// publishLocked delivers the latest event without blocking on slow subscribers
func (c *Context) publishLocked() {
	ev := c.eventLocked()
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (c *Context) ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

func asAuthError(op string, err error) *identity.AuthError {
	var authErr *identity.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &identity.AuthError{Op: op, Code: identity.CodeInternal, Message: err.Error(), Err: err}
}

func copyIdentity(id *identity.Identity) *identity.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func sameIdentity(a, b *identity.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
