package identity

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/oauth2"
)

// Provider IDs reported on an Identity
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google.com"
)

// Identity is an authenticated user as reported by a provider
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	ProviderID  string `json:"providerId"`

	// token is the provider-issued credential; it never leaves this package
	token string
}

// Name returns the display name, falling back to the email address
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Email
}

// Initial returns the upper-cased first letter of the name for avatars
func (i Identity) Initial() string {
	r, _ := utf8.DecodeRuneInString(i.Name())
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// EmailLocalPart returns the part of the email address before the "@"
func EmailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// Attributes is a partial profile update. Nil fields are left unchanged.
type Attributes struct {
	DisplayName *string
	PhotoURL    *string
}

// String returns a pointer to s, for building Attributes
func String(s string) *string {
	return &s
}

// IsEmpty reports whether the update changes nothing
func (a Attributes) IsEmpty() bool {
	return a.DisplayName == nil && a.PhotoURL == nil
}

// apply returns a copy of id with the attributes applied
func (a Attributes) apply(id Identity) Identity {
	if a.DisplayName != nil {
		id.DisplayName = strings.TrimSpace(*a.DisplayName)
	}
	if a.PhotoURL != nil {
		id.PhotoURL = strings.TrimSpace(*a.PhotoURL)
	}
	return id
}

// Listener receives the instance's current user after every change.
// A nil identity means signed out.
type Listener func(*Identity)

// Provider is one auth instance of an identity provider
type Provider interface {
	// SignInWithPassword signs in with email and password
	SignInWithPassword(ctx context.Context, email, password string) (Identity, error)

	// SignInWithProvider signs in with a federated grant obtained from Google
	SignInWithProvider(ctx context.Context, source oauth2.TokenSource) (Identity, error)

	// SignUp registers a new account and signs it in
	SignUp(ctx context.Context, email, password string) (Identity, error)

	// UpdateProfile applies attributes to the target identity
	UpdateProfile(ctx context.Context, target Identity, attrs Attributes) (Identity, error)

	// SignOut clears the instance's current user
	SignOut(ctx context.Context) error

	// OnChange registers a listener. It is called with the current user
	// immediately and after every change until unsubscribe is called.
	OnChange(listener Listener) (unsubscribe func())

	// CurrentUser returns the signed-in user, or nil
	CurrentUser() *Identity
}

// Factory creates independent auth instances
type Factory interface {
	NewProvider() Provider
}
