package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/s0up4200/movieflix/identity"
)

type credentialsForm struct {
	Email string
	Next  string
}

type profileForm struct {
	DisplayName string
	PhotoURL    string
}

// exchangeSource exchanges the authorization code when the provider first
// asks for the token, so exchange failures surface as provider errors
type exchangeSource struct {
	ctx    context.Context
	config *oauth2.Config
	code   string
}

func (e exchangeSource) Token() (*oauth2.Token, error) {
	return e.config.Exchange(e.ctx, e.code)
}

// authMessage returns the provider message of an auth failure
func authMessage(err error) string {
	var authErr *identity.AuthError
	if errors.As(err, &authErr) {
		return authErr.Error()
	}
	return err.Error()
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}
	if b.session.Current() != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := s.page(b, "", "Sign In")
	data.View = credentialsForm{Next: r.URL.Query().Get("next")}
	s.render(w, r, http.StatusOK, "login", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	// r.Form holds the posted fields first, then the query string
	next := r.Form.Get("next")

	if err := b.session.SignIn(r.Context(), email, password); err != nil {
		data := s.page(b, "", "Sign In")
		data.Error = "Failed to sign in: " + authMessage(err)
		data.View = credentialsForm{Email: email, Next: next}
		s.render(w, r, http.StatusUnauthorized, "login", data)
		return
	}

	http.Redirect(w, r, localRedirect(next), http.StatusSeeOther)
}

func (s *Server) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}
	if b.session.Current() != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := s.page(b, "", "Sign Up")
	data.View = credentialsForm{}
	s.render(w, r, http.StatusOK, "signup", data)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	fail := func(status int, message string) {
		data := s.page(b, "", "Sign Up")
		data.Error = message
		data.View = credentialsForm{Email: email}
		s.render(w, r, status, "signup", data)
	}

	// Mismatched passwords never reach the provider
	if password != r.PostForm.Get("confirm") {
		fail(http.StatusBadRequest, "Passwords do not match")
		return
	}

	created, err := b.session.SignUp(r.Context(), email, password)
	if err != nil {
		fail(http.StatusBadRequest, "Failed to sign up: "+authMessage(err))
		return
	}

	attrs := identity.Attributes{DisplayName: identity.String(identity.EmailLocalPart(email))}
	if _, err := b.session.UpdateProfile(r.Context(), created, attrs); err != nil {
		// the account exists and is signed in; only the display name is missing
		s.logger.Warn().Err(err).Str("uid", created.UID).Msg("Failed to set display name after sign-up")
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if s.google == nil {
		http.NotFound(w, r)
		return
	}
	b, ok := s.browser(w, r)
	if !ok {
		return
	}

	state := uuid.NewString()
	b.setOAuthState(state)
	http.Redirect(w, r, s.google.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.google == nil {
		http.NotFound(w, r)
		return
	}
	b, ok := s.browser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	expected := b.takeOAuthState()

	var err error
	switch {
	case expected == "" || q.Get("state") != expected:
		err = errors.New("invalid sign-in state, please try again")
	case q.Get("error") != "" || q.Get("code") == "":
		// the user closed or denied the consent screen
		err = b.session.SignInWithProvider(r.Context(), nil)
	default:
		source := oauth2.ReuseTokenSource(nil, exchangeSource{ctx: r.Context(), config: s.google, code: q.Get("code")})
		err = b.session.SignInWithProvider(r.Context(), source)
	}

	if err != nil {
		data := s.page(b, "", "Sign In")
		data.Error = "Failed to sign in: " + authMessage(err)
		data.View = credentialsForm{}
		s.render(w, r, http.StatusUnauthorized, "login", data)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleProfileForm(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}
	current := b.session.Current()
	if current == nil {
		http.Redirect(w, r, "/login?next=/profile", http.StatusSeeOther)
		return
	}

	data := s.page(b, "", "Profile")
	data.View = profileForm{DisplayName: current.DisplayName, PhotoURL: current.PhotoURL}
	s.render(w, r, http.StatusOK, "profile", data)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}
	current := b.session.Current()
	if current == nil {
		http.Redirect(w, r, "/login?next=/profile", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	form := profileForm{
		DisplayName: strings.TrimSpace(r.PostForm.Get("display_name")),
		PhotoURL:    strings.TrimSpace(r.PostForm.Get("photo_url")),
	}
	attrs := identity.Attributes{
		DisplayName: identity.String(form.DisplayName),
		PhotoURL:    identity.String(form.PhotoURL),
	}

	_, err := b.session.UpdateProfile(r.Context(), *current, attrs)
	if err != nil {
		var authErr *identity.AuthError
		if errors.As(err, &authErr) && authErr.IsStale() {
			_ = b.session.SignOut(r.Context())
			http.Redirect(w, r, "/login?next=/profile", http.StatusSeeOther)
			return
		}

		data := s.page(b, "", "Profile")
		data.Error = "Failed to update profile: " + authMessage(err)
		data.View = form
		s.render(w, r, http.StatusBadRequest, "profile", data)
		return
	}

	data := s.page(b, "", "Profile")
	data.Notice = "Profile updated"
	data.View = form
	s.render(w, r, http.StatusOK, "profile", data)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if b, ok := s.browsers.lookup(r); ok {
		if err := b.session.SignOut(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Sign-out reported an error; session cleared")
		}
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
