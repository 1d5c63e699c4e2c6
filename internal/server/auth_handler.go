package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/allyant/audit-reporter/internal/config"
	"github.com/allyant/audit-reporter/internal/server/middleware"
)

// loginStateCookie holds the signed PKCE verifier and state between
// /login and /auth/callback.
const loginStateCookie = "codeVerifier"

// accessTokenTTL matches the identity provider's token lifetime.
const accessTokenTTL = 24 * time.Hour

// AuthHandler implements the OAuth2 authorization-code flow with PKCE
// against the identity provider.
type AuthHandler struct {
	oauth  *oauth2.Config
	signer *StateSigner
	log    *zap.Logger
}

// NewAuthHandler creates an AuthHandler for the configured tenant.
func NewAuthHandler(cfg config.OAuthConfig, signer *StateSigner, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     microsoft.AzureADEndpoint(cfg.TenantID),
		},
		signer: signer,
		log:    log,
	}
}

// Login starts a login attempt: it generates a PKCE verifier, stores it
// with a fresh state value in a signed short-lived cookie, and redirects
// to the identity provider with the S256 challenge.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	signed, err := h.signer.Sign(verifier, state)
	if err != nil {
		h.log.Error("failed to sign login state", zap.Error(err))
		http.Error(w, "Error during authentication", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     loginStateCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(loginStateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	authURL := h.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback finishes the login: it checks the state, exchanges the code
// plus verifier for an access token, and moves the session onto the
// access-token cookie.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(loginStateCookie)
	if err != nil {
		h.log.Warn("login state cookie missing on callback")
		http.Error(w, "Error during authentication", http.StatusBadRequest)
		return
	}

	claims, err := h.signer.Validate(cookie.Value)
	if err != nil {
		h.log.Warn("invalid login state cookie", zap.Error(err))
		http.Error(w, "Error during authentication", http.StatusBadRequest)
		return
	}

	if state := r.URL.Query().Get("state"); state != claims.State {
		h.log.Warn("state mismatch on callback")
		http.Error(w, "Error during authentication", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Error during authentication", http.StatusBadRequest)
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code, oauth2.VerifierOption(claims.Verifier))
	if err != nil {
		h.log.Error("token exchange failed", zap.Error(err))
		http.Error(w, "Error during authentication", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    token.AccessToken,
		Path:     "/",
		MaxAge:   int(accessTokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	// The verifier is single-use; drop its cookie.
	http.SetCookie(w, &http.Cookie{
		Name:     loginStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/protected", http.StatusFound)
}
