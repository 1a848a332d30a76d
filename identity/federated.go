package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// DefaultUserInfoURL is Google's OpenID Connect userinfo endpoint
const DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// googleProfile is the subset of the userinfo response we use
type googleProfile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// federatedToken resolves the grant, mapping failures to AuthErrors
func federatedToken(op string, source oauth2.TokenSource) (*oauth2.Token, error) {
	if source == nil {
		return nil, newAuthError(op, CodeFederatedCancelled, "The popup has been closed by the user before finalizing the operation.")
	}

	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &AuthError{Op: op, Code: CodeInvalidCredential, Message: retrieveErr.Error(), Err: err}
		}
		return nil, &AuthError{Op: op, Code: CodeFederatedCancelled, Message: err.Error(), Err: err}
	}
	if !token.Valid() {
		return nil, newAuthError(op, CodeInvalidCredential, "The supplied auth credential is malformed or has expired.")
	}

	return token, nil
}

// fetchGoogleProfile reads the user's profile with the granted access token
func fetchGoogleProfile(ctx context.Context, httpClient *http.Client, userInfoURL string, token *oauth2.Token) (googleProfile, error) {
	const op = "signInWithProvider"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return googleProfile{}, &AuthError{Op: op, Code: CodeInternal, Message: err.Error(), Err: err}
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return googleProfile{}, &AuthError{Op: op, Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return googleProfile{}, &AuthError{Op: op, Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return googleProfile{}, newAuthError(op, CodeInvalidCredential,
			fmt.Sprintf("userinfo request failed: status %d", resp.StatusCode))
	}

	var profile googleProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return googleProfile{}, &AuthError{Op: op, Code: CodeInternal, Message: err.Error(), Err: err}
	}
	if profile.Subject == "" || profile.Email == "" {
		return googleProfile{}, newAuthError(op, CodeInvalidCredential, "userinfo response is missing subject or email")
	}

	return profile, nil
}
