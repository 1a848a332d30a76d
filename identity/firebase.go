package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	// DefaultIdentityToolkitURL is the Firebase Auth REST endpoint
	DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	// DefaultRequestURI is sent as the IdP request URI for federated sign-in
	DefaultRequestURI = "http://localhost"
)

// FirebaseClient is a Factory backed by the Firebase Identity Toolkit REST API
type FirebaseClient struct {
	baseURL    string
	apiKey     string
	requestURI string
	httpClient *http.Client
	logger     zerolog.Logger
}

// FirebaseOption configures a FirebaseClient
type FirebaseOption func(*FirebaseClient)

// WithFirebaseBaseURL overrides the Identity Toolkit endpoint
func WithFirebaseBaseURL(u string) FirebaseOption {
	return func(c *FirebaseClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithRequestURI sets the request URI reported for federated sign-in
func WithRequestURI(u string) FirebaseOption {
	return func(c *FirebaseClient) {
		c.requestURI = u
	}
}

// WithFirebaseHTTPClient sets the HTTP client
func WithFirebaseHTTPClient(client *http.Client) FirebaseOption {
	return func(c *FirebaseClient) {
		c.httpClient = client
	}
}

// NewFirebaseClient creates a Firebase-backed factory
func NewFirebaseClient(apiKey string, logger zerolog.Logger, opts ...FirebaseOption) (*FirebaseClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: firebase API key is required", ErrInvalidConfig)
	}

	c := &FirebaseClient{
		baseURL:    DefaultIdentityToolkitURL,
		apiKey:     apiKey,
		requestURI: DefaultRequestURI,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With().Str("component", "identity").Str("provider", "firebase").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NewProvider returns a fresh auth instance
func (c *FirebaseClient) NewProvider() Provider {
	return &firebaseProvider{client: c}
}

type firebaseAuthResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	IDToken     string `json:"idToken"`
	ProviderID  string `json:"providerId"`
}

type firebaseErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// firebaseCodes maps Identity Toolkit error messages to error codes
var firebaseCodes = map[string]string{
	"EMAIL_NOT_FOUND":                  CodeUserNotFound,
	"INVALID_PASSWORD":                 CodeWrongPassword,
	"INVALID_LOGIN_CREDENTIALS":        CodeInvalidCredential,
	"INVALID_IDP_RESPONSE":             CodeInvalidCredential,
	"EMAIL_EXISTS":                     CodeEmailInUse,
	"FEDERATED_USER_ID_ALREADY_LINKED": CodeEmailInUse,
	"WEAK_PASSWORD":                    CodeWeakPassword,
	"INVALID_EMAIL":                    CodeInvalidEmail,
	"MISSING_PASSWORD":                 CodeMissingPassword,
	"USER_DISABLED":                    CodeUserDisabled,
	"TOO_MANY_ATTEMPTS_TRY_LATER":      CodeTooManyRequests,
	"TOKEN_EXPIRED":                    CodeTokenExpired,
	"USER_NOT_FOUND":                   CodeUserNotFound,
	"INVALID_ID_TOKEN":                 CodeInvalidToken,
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN":   CodeTokenExpired,
}

// firebaseCode classifies a message such as "WEAK_PASSWORD : Password should be at least 6 characters"
func firebaseCode(message string) string {
	key, _, _ := strings.Cut(message, ":")
	if code, ok := firebaseCodes[strings.TrimSpace(key)]; ok {
		return code
	}
	return CodeInternal
}

// call POSTs payload to accounts:<method> and decodes the response into out
func (c *FirebaseClient) call(ctx context.Context, op, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &AuthError{Op: op, Code: CodeInternal, Message: err.Error(), Err: err}
	}

	endpoint := fmt.Sprintf("%s/accounts:%s?key=%s", c.baseURL, method, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &AuthError{Op: op, Code: CodeInternal, Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("method", method).Msg("Making identity toolkit request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &AuthError{Op: op, Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &AuthError{Op: op, Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errBody firebaseErrorBody
		message := ""
		if json.Unmarshal(respBody, &errBody) == nil {
			message = errBody.Error.Message
		}
		if message == "" {
			message = fmt.Sprintf("identity toolkit request failed: status %d", resp.StatusCode)
		}

		c.logger.Debug().Str("method", method).Int("status", resp.StatusCode).Str("message", message).Msg("Identity toolkit rejected request")
		return &AuthError{Op: op, Code: firebaseCode(message), Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &AuthError{Op: op, Code: CodeInternal, Message: err.Error(), Err: err}
	}
	return nil
}

func (c *FirebaseClient) identity(resp firebaseAuthResponse, providerID string) Identity {
	if resp.ProviderID != "" {
		providerID = resp.ProviderID
	}
	return Identity{
		UID:         resp.LocalID,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		PhotoURL:    resp.PhotoURL,
		ProviderID:  providerID,
		token:       resp.IDToken,
	}
}

// firebaseProvider is one auth instance over a FirebaseClient
type firebaseProvider struct {
	client *FirebaseClient
	stream changeStream
}

func (p *firebaseProvider) SignInWithPassword(ctx context.Context, email, password string) (Identity, error) {
	var resp firebaseAuthResponse
	err := p.client.call(ctx, "signIn", "signInWithPassword", map[string]any{
		"email":             strings.TrimSpace(email),
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return Identity{}, err
	}

	return p.signIn(p.client.identity(resp, ProviderPassword)), nil
}

func (p *firebaseProvider) SignInWithProvider(ctx context.Context, source oauth2.TokenSource) (Identity, error) {
	const op = "signInWithProvider"

	token, err := federatedToken(op, source)
	if err != nil {
		return Identity{}, err
	}

	postBody := url.Values{"providerId": {ProviderGoogle}}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		postBody.Set("id_token", idToken)
	} else {
		postBody.Set("access_token", token.AccessToken)
	}

	var resp firebaseAuthResponse
	err = p.client.call(ctx, op, "signInWithIdp", map[string]any{
		"postBody":          postBody.Encode(),
		"requestUri":        p.client.requestURI,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return Identity{}, err
	}

	return p.signIn(p.client.identity(resp, ProviderGoogle)), nil
}

func (p *firebaseProvider) SignUp(ctx context.Context, email, password string) (Identity, error) {
	var resp firebaseAuthResponse
	err := p.client.call(ctx, "signUp", "signUp", map[string]any{
		"email":             strings.TrimSpace(email),
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return Identity{}, err
	}

	return p.signIn(p.client.identity(resp, ProviderPassword)), nil
}

func (p *firebaseProvider) UpdateProfile(ctx context.Context, target Identity, attrs Attributes) (Identity, error) {
	const op = "updateProfile"

	if target.token == "" {
		return Identity{}, newAuthError(op, CodeNoCurrentUser, "No user is currently signed in.")
	}

	payload := map[string]any{
		"idToken":           target.token,
		"returnSecureToken": true,
	}
	var deleteAttrs []string
	if attrs.DisplayName != nil {
		if name := strings.TrimSpace(*attrs.DisplayName); name != "" {
			payload["displayName"] = name
		} else {
			deleteAttrs = append(deleteAttrs, "DISPLAY_NAME")
		}
	}
	if attrs.PhotoURL != nil {
		if photo := strings.TrimSpace(*attrs.PhotoURL); photo != "" {
			payload["photoUrl"] = photo
		} else {
			deleteAttrs = append(deleteAttrs, "PHOTO_URL")
		}
	}
	if len(deleteAttrs) > 0 {
		payload["deleteAttribute"] = deleteAttrs
	}

	var resp firebaseAuthResponse
	if err := p.client.call(ctx, op, "update", payload, &resp); err != nil {
		return Identity{}, err
	}

	updated := attrs.apply(target)
	if resp.IDToken != "" {
		updated.token = resp.IDToken
	}

	if current := p.stream.user(); current != nil && current.UID == updated.UID {
		p.stream.set(&updated)
	}

	return updated, nil
}

// SignOut is local for Firebase; ID tokens simply expire
func (p *firebaseProvider) SignOut(ctx context.Context) error {
	p.stream.set(nil)
	return nil
}

func (p *firebaseProvider) OnChange(listener Listener) func() {
	return p.stream.subscribe(listener)
}

func (p *firebaseProvider) CurrentUser() *Identity {
	return p.stream.user()
}

func (p *firebaseProvider) signIn(id Identity) Identity {
	p.stream.set(&id)
	return id
}
