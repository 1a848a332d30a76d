package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const (
	// DefaultTokenTTL is how long a locally issued ID token stays valid
	DefaultTokenTTL = time.Hour
	// DefaultMinPasswordLength matches Firebase's password policy
	DefaultMinPasswordLength = 6
)

// account is a persisted directory entry
type account struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	GoogleID     string    `json:"googleId,omitempty"`
	DisplayName  string    `json:"displayName,omitempty"`
	PhotoURL     string    `json:"photoURL,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type tokenClaims struct {
	Email    string `json:"email"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// Directory is a self-hosted account directory
type Directory struct {
	mu       sync.RWMutex
	path     string
	accounts map[string]account // keyed by UID

	signingKey        []byte
	tokenTTL          time.Duration
	minPasswordLength int
	bcryptCost        int
	dummyHash         []byte // compared against for unknown emails
	userInfoURL       string
	httpClient        *http.Client
	now               func() time.Time
	logger            zerolog.Logger
}

// DirectoryOption configures a Directory
type DirectoryOption func(*Directory)

// WithStorePath persists accounts to a JSON file
func WithStorePath(path string) DirectoryOption {
	return func(d *Directory) {
		d.path = strings.TrimSpace(path)
	}
}

// WithTokenTTL sets the lifetime of issued ID tokens
func WithTokenTTL(ttl time.Duration) DirectoryOption {
	return func(d *Directory) {
		if ttl > 0 {
			d.tokenTTL = ttl
		}
	}
}

// WithMinPasswordLength sets the minimum accepted password length
func WithMinPasswordLength(n int) DirectoryOption {
	return func(d *Directory) {
		if n > 0 {
			d.minPasswordLength = n
		}
	}
}

// WithBcryptCost sets the bcrypt cost for new password hashes
func WithBcryptCost(cost int) DirectoryOption {
	return func(d *Directory) {
		d.bcryptCost = cost
	}
}

// WithUserInfoURL sets the endpoint used to resolve federated grants
func WithUserInfoURL(u string) DirectoryOption {
	return func(d *Directory) {
		d.userInfoURL = u
	}
}

// WithDirectoryHTTPClient sets the HTTP client used for userinfo requests
func WithDirectoryHTTPClient(client *http.Client) DirectoryOption {
	return func(d *Directory) {
		d.httpClient = client
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) DirectoryOption {
	return func(d *Directory) {
		d.now = now
	}
}

// NewDirectory creates a local account directory
func NewDirectory(signingKey []byte, logger zerolog.Logger, opts ...DirectoryOption) (*Directory, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("%w: signing key is required", ErrInvalidConfig)
	}

	d := &Directory{
		accounts:          make(map[string]account),
		signingKey:        signingKey,
		tokenTTL:          DefaultTokenTTL,
		minPasswordLength: DefaultMinPasswordLength,
		bcryptCost:        bcrypt.DefaultCost,
		userInfoURL:       DefaultUserInfoURL,
		httpClient:        &http.Client{Timeout: 15 * time.Second},
		now:               time.Now,
		logger:            logger.With().Str("component", "identity").Str("provider", "local").Logger(),
	}

	for _, opt := range opts {
		opt(d)
	}

	dummyHash, err := bcrypt.GenerateFromPassword([]byte("unknown-account"), d.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: bcrypt cost %d: %v", ErrInvalidConfig, d.bcryptCost, err)
	}
	d.dummyHash = dummyHash

	if d.path != "" {
		if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
			return nil, fmt.Errorf("create account store dir: %w", err)
		}
		if err := d.load(); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// NewProvider returns a fresh auth instance backed by the directory
func (d *Directory) NewProvider() Provider {
	return &localProvider{dir: d}
}

// Len returns the number of registered accounts
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.accounts)
}

func (d *Directory) authenticate(email, password string) (account, error) {
	const op = "signIn"

	email = normalizeEmail(email)
	if err := validateEmail(op, email); err != nil {
		return account{}, err
	}
	if password == "" {
		return account{}, newAuthError(op, CodeMissingPassword, "A password is required.")
	}

	d.mu.RLock()
	acc, found := d.findByEmailLocked(email)
	d.mu.RUnlock()

	if !found {
		_ = bcrypt.CompareHashAndPassword(d.dummyHash, []byte(password))
		return account{}, newAuthError(op, CodeUserNotFound, "There is no user record corresponding to this identifier.")
	}
	if acc.PasswordHash == "" {
		return account{}, newAuthError(op, CodeWrongPassword, "This account signs in with Google.")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return account{}, newAuthError(op, CodeWrongPassword, "The password is invalid.")
	}

	return acc, nil
}

func (d *Directory) register(email, password string) (account, error) {
	const op = "signUp"

	email = normalizeEmail(email)
	if err := validateEmail(op, email); err != nil {
		return account{}, err
	}
	if password == "" {
		return account{}, newAuthError(op, CodeMissingPassword, "A password is required.")
	}
	if len([]rune(password)) < d.minPasswordLength {
		return account{}, newAuthError(op, CodeWeakPassword,
			fmt.Sprintf("Password should be at least %d characters.", d.minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.bcryptCost)
	if err != nil {
		return account{}, &AuthError{Op: op, Code: CodeInternal, Message: err.Error(), Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, found := d.findByEmailLocked(email); found {
		return account{}, newAuthError(op, CodeEmailInUse, "The email address is already in use by another account.")
	}

	now := d.now().UTC()
	acc := account{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	d.accounts[acc.UID] = acc

	if err := d.saveLocked(); err != nil {
		delete(d.accounts, acc.UID)
		return account{}, &AuthError{Op: op, Code: CodeInternal, Message: err.Error(), Err: err}
	}

	d.logger.Info().Str("uid", acc.UID).Msg("Account registered")
	return acc, nil
}

// federated resolves a Google grant to an account, linking or creating it
func (d *Directory) federated(ctx context.Context, source oauth2.TokenSource) (account, error) {
	const op = "signInWithProvider"

	token, err := federatedToken(op, source)
	if err != nil {
		return account{}, err
	}

	profile, err := fetchGoogleProfile(ctx, d.httpClient, d.userInfoURL, token)
	if err != nil {
		return account{}, err
	}

	email := normalizeEmail(profile.Email)

	d.mu.Lock()
	defer d.mu.Unlock()

	var acc account
	found := false
	for _, a := range d.accounts {
		if a.GoogleID == profile.Subject {
			acc, found = a, true
			break
		}
	}
	if !found {
		acc, found = d.findByEmailLocked(email)
		if found && !profile.EmailVerified {
			return account{}, newAuthError(op, CodeEmailInUse,
				"An account already exists with the same email address but different sign-in credentials.")
		}
	}

	now := d.now().UTC()
	if !found {
		acc = account{
			UID:         uuid.NewString(),
			Email:       email,
			DisplayName: profile.Name,
			PhotoURL:    profile.Picture,
			CreatedAt:   now,
		}
	}
	previous, existed := d.accounts[acc.UID]
	acc.GoogleID = profile.Subject
	acc.UpdatedAt = now
	d.accounts[acc.UID] = acc

	if err := d.saveLocked(); err != nil {
		if existed {
			d.accounts[acc.UID] = previous
		} else {
			delete(d.accounts, acc.UID)
		}
		return account{}, &AuthError{Op: op, Code: CodeInternal, Message: err.Error(), Err: err}
	}

	return acc, nil
}

func (d *Directory) update(token string, attrs Attributes) (account, error) {
	const op = "updateProfile"

	uid, err := d.verify(op, token)
	if err != nil {
		return account{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	acc, ok := d.accounts[uid]
	if !ok {
		return account{}, newAuthError(op, CodeUserNotFound, "There is no user record corresponding to this identifier.")
	}
	previous := acc

	if attrs.DisplayName != nil {
		acc.DisplayName = strings.TrimSpace(*attrs.DisplayName)
	}
	if attrs.PhotoURL != nil {
		acc.PhotoURL = strings.TrimSpace(*attrs.PhotoURL)
	}
	acc.UpdatedAt = d.now().UTC()
	d.accounts[uid] = acc

	if err := d.saveLocked(); err != nil {
		d.accounts[uid] = previous
		return account{}, &AuthError{Op: op, Code: CodeInternal, Message: err.Error(), Err: err}
	}

	return acc, nil
}

// issue signs an ID token for the account
func (d *Directory) issue(acc account, providerID string) (Identity, error) {
	now := d.now()
	claims := tokenClaims{
		Email:    acc.Email,
		Provider: providerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d.tokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.signingKey)
	if err != nil {
		return Identity{}, &AuthError{Op: "issueToken", Code: CodeInternal, Message: err.Error(), Err: err}
	}

	return Identity{
		UID:         acc.UID,
		Email:       acc.Email,
		DisplayName: acc.DisplayName,
		PhotoURL:    acc.PhotoURL,
		ProviderID:  providerID,
		token:       signed,
	}, nil
}

// verify checks an ID token and returns its subject
func (d *Directory) verify(op, token string) (string, error) {
	if token == "" {
		return "", newAuthError(op, CodeNoCurrentUser, "No user is currently signed in.")
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return d.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(d.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", &AuthError{Op: op, Code: CodeTokenExpired, Message: "The user's credential is no longer valid. The user must sign in again.", Err: err}
		}
		return "", &AuthError{Op: op, Code: CodeInvalidToken, Message: "The user's credential is invalid.", Err: err}
	}

	return claims.Subject, nil
}

func (d *Directory) findByEmailLocked(email string) (account, bool) {
	for _, a := range d.accounts {
		if a.Email == email {
			return a, true
		}
	}
	return account{}, false
}

func (d *Directory) load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	file, err := os.Open(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open account store: %w", err)
	}
	defer file.Close()

	var stored []account
	if err := json.NewDecoder(file).Decode(&stored); err != nil {
		return fmt.Errorf("decode account store: %w", err)
	}

	d.accounts = make(map[string]account, len(stored))
	for _, acc := range stored {
		if strings.TrimSpace(acc.UID) == "" {
			continue
		}
		d.accounts[acc.UID] = acc
	}

	d.logger.Debug().Int("accounts", len(d.accounts)).Str("path", d.path).Msg("Loaded account store")
	return nil
}

func (d *Directory) saveLocked() error {
	if d.path == "" {
		return nil
	}

	stored := make([]account, 0, len(d.accounts))
	for _, acc := range d.accounts {
		stored = append(stored, acc)
	}
	sort.Slice(stored, func(i, j int) bool {
		return stored[i].CreatedAt.Before(stored[j].CreatedAt)
	})

	tmp := d.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create account store temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stored); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode account store: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close account store: %w", err)
	}

	if err := os.Rename(tmp, d.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace account store: %w", err)
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(op, email string) error {
	if email == "" {
		return newAuthError(op, CodeInvalidEmail, "The email address is badly formatted.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return newAuthError(op, CodeInvalidEmail, "The email address is badly formatted.")
	}
	return nil
}

// localProvider is one auth instance over a Directory
type localProvider struct {
	dir    *Directory
	stream changeStream
}

func (p *localProvider) SignInWithPassword(ctx context.Context, email, password string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, &AuthError{Op: "signIn", Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	acc, err := p.dir.authenticate(email, password)
	if err != nil {
		return Identity{}, err
	}

	return p.signIn(acc, ProviderPassword)
}

func (p *localProvider) SignInWithProvider(ctx context.Context, source oauth2.TokenSource) (Identity, error) {
	acc, err := p.dir.federated(ctx, source)
	if err != nil {
		return Identity{}, err
	}

	return p.signIn(acc, ProviderGoogle)
}

func (p *localProvider) SignUp(ctx context.Context, email, password string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, &AuthError{Op: "signUp", Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	acc, err := p.dir.register(email, password)
	if err != nil {
		return Identity{}, err
	}

	return p.signIn(acc, ProviderPassword)
}

func (p *localProvider) UpdateProfile(ctx context.Context, target Identity, attrs Attributes) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, &AuthError{Op: "updateProfile", Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	acc, err := p.dir.update(target.token, attrs)
	if err != nil {
		return Identity{}, err
	}

	updated := target
	updated.DisplayName = acc.DisplayName
	updated.PhotoURL = acc.PhotoURL

	if current := p.stream.user(); current != nil && current.UID == updated.UID {
		p.stream.set(&updated)
	}

	return updated, nil
}

func (p *localProvider) SignOut(ctx context.Context) error {
	p.stream.set(nil)
	return nil
}

func (p *localProvider) OnChange(listener Listener) func() {
	return p.stream.subscribe(listener)
}

func (p *localProvider) CurrentUser() *Identity {
	return p.stream.user()
}

func (p *localProvider) signIn(acc account, providerID string) (Identity, error) {
	id, err := p.dir.issue(acc, providerID)
	if err != nil {
		return Identity{}, err
	}

	p.stream.set(&id)
	return id, nil
}
