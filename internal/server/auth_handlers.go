package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/idbroker/internal/browserauth"
	"github.com/dgellow/idbroker/internal/cookie"
	"github.com/dgellow/idbroker/internal/crypto"
	"github.com/dgellow/idbroker/internal/idp"
	"github.com/dgellow/idbroker/internal/log"
	"github.com/dgellow/idbroker/internal/metrics"
	"github.com/dgellow/idbroker/internal/oauth"
	"github.com/dgellow/idbroker/internal/storage"
	"github.com/google/uuid"
)

// upstreamTimeout bounds the code exchange and identity fetch together
const upstreamTimeout = 30 * time.Second

// consentRequestTTL is how long a rendered consent form stays usable
const consentRequestTTL = 10 * time.Minute

// IdentityClient is the part of the identity provider client the flow needs
type IdentityClient interface {
	BuildAuthorizationURL(stateKey, scope string) string
	Authenticate(ctx context.Context, code string) (*idp.Identity, error)
}

// AuthHandlersConfig carries the static settings of the login flow
type AuthHandlersConfig struct {
	AppName string
	// IDPScope is requested from the identity provider, empty for its default
	IDPScope string
	// SigningKey signs consent forms and CSRF tokens
	SigningKey []byte
}

// AuthHandlers drives the authorization flow: login at the identity
// provider, consent, and hand-off to the grant service
type AuthHandlers struct {
	grants        oauth.GrantService
	identity      IdentityClient
	sessions      *browserauth.Manager
	store         storage.Store
	metrics       *metrics.Metrics
	requestSigner crypto.TokenSigner
	csrf          crypto.CSRFProtection
	appName       string
	idpScope      string
}

// NewAuthHandlers creates the flow handlers
func NewAuthHandlers(
	grants oauth.GrantService,
	identity IdentityClient,
	sessions *browserauth.Manager,
	store storage.Store,
	m *metrics.Metrics,
	cfg AuthHandlersConfig,
) *AuthHandlers {
	return &AuthHandlers{
		grants:        grants,
		identity:      identity,
		sessions:      sessions,
		store:         store,
		metrics:       m,
		requestSigner: crypto.NewTokenSigner(cfg.SigningKey, consentRequestTTL),
		csrf:          crypto.NewCSRFProtection(cfg.SigningKey, consentRequestTTL),
		appName:       cfg.AppName,
		idpScope:      cfg.IDPScope,
	}
}

func (h *AuthHandlers) base(title string) pageBase {
	return pageBase{Title: title, AppName: h.appName}
}

func (h *AuthHandlers) renderMessage(w http.ResponseWriter, status int, title, message string) {
	renderPage(w, status, "message.html", MessagePageData{
		pageBase: h.base(title),
		Message:  message,
		IsError:  status >= http.StatusBadRequest,
	})
}

// currentSession validates the auth_token cookie. The auth_email cookie is
// never consulted. Expired sessions get their cookies cleared.
func (h *AuthHandlers) currentSession(w http.ResponseWriter, r *http.Request) (string, browserauth.Result, error) {
	token, err := cookie.GetSessionToken(r)
	if err != nil {
		return "", browserauth.Result{Status: browserauth.StatusAbsent}, nil
	}
	result, err := h.sessions.Validate(r.Context(), token)
	if err != nil {
		return "", browserauth.Result{}, err
	}
	if result.Status == browserauth.StatusExpired {
		cookie.ClearSessionPair(w)
	}
	return token, result, nil
}

// HomeHandler serves the landing page
func (h *AuthHandlers) HomeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := HomePageData{pageBase: h.base("Home")}
	if _, result, err := h.currentSession(w, r); err == nil && result.Valid() {
		data.User = result.Session.Email
	}
	renderPage(w, http.StatusOK, "home.html", data)
}

// AuthorizeHandler is the flow entry point. A signed-in user goes straight
// to consent; anyone else is sent to the identity provider with the request
// stashed under a one-time state key.
func (h *AuthHandlers) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pending, err := h.grants.ParseAuthorizationRequest(ctx, r)
	if err != nil {
		log.LogWarnWithFields("auth", "Rejected authorization request", map[string]any{
			"error": err.Error(),
		})
		h.transition(stateNewRequest, stateError, map[string]any{"reason": "invalid_request"})
		h.renderMessage(w, http.StatusBadRequest, "Invalid request", "The application sent an invalid authorization request.")
		return
	}

	token, result, err := h.currentSession(w, r)
	if err != nil {
		log.LogErrorWithFields("auth", "Session lookup failed", map[string]any{
			"error": err.Error(),
		})
		h.transition(stateNewRequest, stateError, map[string]any{"reason": "store_failure"})
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}

	if result.Valid() {
		h.transition(stateNewRequest, stateAwaitingConsent, map[string]any{
			"client_id": pending.ClientID,
			"user":      result.Session.Email,
		})
		h.renderConsent(w, pending, result.Session, token)
		return
	}

	stateKey := uuid.NewString()
	data, err := json.Marshal(pending)
	if err != nil {
		log.LogError("Failed to encode pending request: %v", err)
		h.transition(stateNewRequest, stateError, map[string]any{"reason": "encode_failure"})
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}
	if err := h.store.Put(ctx, storage.StateKey(stateKey), data, storage.StateTTL); err != nil {
		log.LogErrorWithFields("auth", "Failed to stash authorization request", map[string]any{
			"error": err.Error(),
		})
		h.transition(stateNewRequest, stateError, map[string]any{"reason": "store_failure"})
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}

	h.transition(stateNewRequest, stateAwaitingLogin, map[string]any{
		"client_id": pending.ClientID,
	})
	http.Redirect(w, r, h.identity.BuildAuthorizationURL(stateKey, h.idpScope), http.StatusFound)
}

// CallbackHandler receives the identity provider redirect
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		log.LogWarnWithFields("auth", "Identity provider returned an error", map[string]any{
			"error":             errCode,
			"error_description": q.Get("error_description"),
		})
		h.transition(stateAwaitingLogin, stateError, map[string]any{"reason": "provider_error"})
		h.renderMessage(w, http.StatusBadRequest, "Sign-in failed",
			fmt.Sprintf("The identity provider reported an error: %s", errCode))
		return
	}

	code, stateKey := q.Get("code"), q.Get("state")
	if code == "" || stateKey == "" {
		h.transition(stateAwaitingLogin, stateError, map[string]any{"reason": "malformed_callback"})
		h.renderMessage(w, http.StatusBadRequest, "Sign-in failed", "The sign-in response was incomplete.")
		return
	}

	pending, err := h.consumePendingRequest(r.Context(), stateKey)
	if err != nil {
		if errors.Is(err, errStateNotFound) {
			h.transition(stateAwaitingLogin, stateError, map[string]any{"reason": "unknown_state"})
			h.renderMessage(w, http.StatusBadRequest, "Sign-in failed",
				"This sign-in link is invalid or expired. Please start again from the application.")
			return
		}
		log.LogErrorWithFields("auth", "Failed to load stashed request", map[string]any{
			"error": err.Error(),
		})
		h.transition(stateAwaitingLogin, stateError, map[string]any{"reason": "store_failure"})
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	start := time.Now()
	identity, err := h.identity.Authenticate(ctx, code)
	if h.metrics != nil {
		h.metrics.ObserveAuthentication(start)
	}
	if err != nil {
		h.handleAuthenticationError(w, err)
		return
	}

	token, email, err := h.sessions.Create(r.Context(), identity)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to create session", map[string]any{
			"error": err.Error(),
		})
		h.transition(stateAwaitingLogin, stateError, map[string]any{"reason": "store_failure"})
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}
	if h.metrics != nil {
		h.metrics.IncrementSessionsCreated()
	}
	cookie.SetSessionPair(w, email, token, h.sessions.TTL())

	h.transition(stateAwaitingLogin, stateAwaitingConsent, map[string]any{
		"client_id": pending.ClientID,
		"user":      email,
	})
	h.renderConsent(w, pending, &browserauth.IdentitySession{
		Email:   email,
		Name:    identity.Name,
		Picture: identity.Picture,
	}, token)
}

var errStateNotFound = errors.New("state not found")

// consumePendingRequest loads and deletes the stash for stateKey. The entry
// is gone before the provider is contacted, whatever the outcome. Unknown,
// expired and unreadable entries all report errStateNotFound.
func (h *AuthHandlers) consumePendingRequest(ctx context.Context, stateKey string) (*oauth.PendingAuthorizationRequest, error) {
	key := storage.StateKey(stateKey)
	data, err := h.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errStateNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := h.store.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("deleting state entry: %w", err)
	}

	var pending oauth.PendingAuthorizationRequest
	if err := json.Unmarshal(data, &pending); err != nil {
		log.LogWarnWithFields("auth", "Discarding unreadable state entry", map[string]any{
			"error": err.Error(),
		})
		return nil, errStateNotFound
	}
	return &pending, nil
}

func (h *AuthHandlers) handleAuthenticationError(w http.ResponseWriter, err error) {
	var denied *idp.AllowListDeniedError
	if errors.As(err, &denied) {
		log.LogWarnWithFields("auth", "Sign-in refused by allow-list", map[string]any{
			"email": denied.Email,
		})
		if h.metrics != nil {
			h.metrics.IncrementAllowListDenial()
		}
		h.transition(stateAwaitingLogin, stateError, map[string]any{"reason": "allowlist_denied"})
		h.renderMessage(w, http.StatusForbidden, "Access denied", denied.Error())
		return
	}

	stage := "identity"
	fields := map[string]any{"error": err.Error()}
	var exchangeErr *idp.UpstreamExchangeError
	if errors.As(err, &exchangeErr) {
		stage = "exchange"
		fields["status"] = exchangeErr.StatusCode
		fields["body"] = exchangeErr.Body
	}
	var identityErr *idp.UpstreamIdentityError
	if errors.As(err, &identityErr) {
		fields["status"] = identityErr.StatusCode
		fields["body"] = identityErr.Body
	}
	fields["stage"] = stage
	log.LogErrorWithFields("auth", "Identity provider call failed", fields)

	if h.metrics != nil {
		h.metrics.IncrementUpstreamFailure(stage)
	}
	h.transition(stateAwaitingLogin, stateError, map[string]any{"reason": "upstream_failure"})
	h.renderMessage(w, http.StatusInternalServerError, "Sign-in failed",
		"We could not complete sign-in with the identity provider. Please try again.")
}

// renderConsent shows the approval screen. The request descriptor is signed
// into the form since no server-side copy is kept past this point.
func (h *AuthHandlers) renderConsent(w http.ResponseWriter, pending *oauth.PendingAuthorizationRequest, session *browserauth.IdentitySession, sessionToken string) {
	signed, err := h.requestSigner.Sign(pending)
	if err != nil {
		log.LogError("Failed to sign consent request: %v", err)
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}
	csrfToken, err := h.csrf.Generate(sessionToken)
	if err != nil {
		log.LogError("Failed to generate CSRF token: %v", err)
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}

	renderPage(w, http.StatusOK, "consent.html", ConsentPageData{
		pageBase:      h.base("Authorization"),
		ClientID:      pending.ClientID,
		DisplayName:   session.DisplayName(),
		Email:         session.Email,
		Picture:       session.Picture,
		Scopes:        oauth.DescribeScopes(pending.Scopes),
		SignedRequest: signed,
		CSRFToken:     csrfToken,
	})
}

// ApproveHandler processes the consent form. The session is re-validated
// here; cookie presence alone proves nothing.
func (h *AuthHandlers) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.transition(stateAwaitingConsent, stateError, map[string]any{"reason": "malformed_form"})
		h.renderMessage(w, http.StatusBadRequest, "Invalid request", "The approval form could not be read.")
		return
	}

	signed := r.PostForm.Get("request")
	if signed == "" {
		h.transition(stateAwaitingConsent, stateError, map[string]any{"reason": "missing_request"})
		h.renderMessage(w, http.StatusBadRequest, "Invalid request", "The approval form is missing the authorization request.")
		return
	}
	var pending oauth.PendingAuthorizationRequest
	if err := h.requestSigner.Verify(signed, &pending); err != nil {
		log.LogWarnWithFields("auth", "Rejected consent request", map[string]any{
			"error": err.Error(),
		})
		h.transition(stateAwaitingConsent, stateError, map[string]any{"reason": "invalid_request"})
		h.renderMessage(w, http.StatusBadRequest, "Invalid request",
			"This approval form is invalid or has expired. Please start again from the application.")
		return
	}

	token, result, err := h.currentSession(w, r)
	if err != nil {
		log.LogErrorWithFields("auth", "Session lookup failed", map[string]any{
			"error": err.Error(),
		})
		h.transition(stateAwaitingConsent, stateError, map[string]any{"reason": "store_failure"})
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}
	if !result.Valid() {
		h.transition(stateAwaitingConsent, stateError, map[string]any{
			"reason":  "no_session",
			"session": result.Status.String(),
		})
		renderPage(w, http.StatusUnauthorized, "message.html", MessagePageData{
			pageBase: h.base("Sign in required"),
			Message:  "Your session has ended. Sign in again to continue.",
			IsError:  true,
			LinkURL:  "/authorize?" + pending.AuthorizeQuery().Encode(),
			LinkText: "Sign in",
		})
		return
	}
	session := result.Session

	if !h.csrf.Validate(token, r.PostForm.Get("csrf_token")) {
		h.transition(stateAwaitingConsent, stateError, map[string]any{"reason": "csrf"})
		h.renderMessage(w, http.StatusForbidden, "Invalid request", "The approval form could not be verified.")
		return
	}

	switch r.PostForm.Get("action") {
	case "deny":
		h.transition(stateAwaitingConsent, stateRejected, map[string]any{
			"client_id": pending.ClientID,
			"user":      session.Email,
		})
		h.renderMessage(w, http.StatusOK, "Access denied",
			fmt.Sprintf("You denied %s access to your account. You can close this window.", pending.ClientID))
	case "approve":
		h.approve(w, r, &pending, session)
	default:
		h.transition(stateAwaitingConsent, stateError, map[string]any{"reason": "unknown_action"})
		h.renderMessage(w, http.StatusBadRequest, "Invalid request", "Unknown action.")
	}
}

func (h *AuthHandlers) approve(w http.ResponseWriter, r *http.Request, pending *oauth.PendingAuthorizationRequest, session *browserauth.IdentitySession) {
	result, err := h.grants.CompleteAuthorization(r.Context(), oauth.CompleteAuthorizationOptions{
		Request: *pending,
		UserID:  session.Email,
		Scope:   pending.Scopes,
		Metadata: oauth.GrantMetadata{
			Label:   session.DisplayName(),
			Picture: session.Picture,
		},
		Props: oauth.GrantProps{
			UserEmail: session.Email,
			UserName:  session.DisplayName(),
		},
	})
	if err != nil {
		log.LogErrorWithFields("auth", "Grant service refused approval", map[string]any{
			"client_id": pending.ClientID,
			"user":      session.Email,
			"error":     err.Error(),
		})
		h.transition(stateAwaitingConsent, stateError, map[string]any{"reason": "grant_failure"})
		if errors.Is(err, oauth.ErrInvalidRequest) {
			h.renderMessage(w, http.StatusBadRequest, "Invalid request", "The authorization request is no longer valid.")
			return
		}
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}

	h.transition(stateAwaitingConsent, stateApproved, map[string]any{
		"client_id": pending.ClientID,
		"user":      session.Email,
	})
	base := h.base("Access granted")
	base.RedirectTo = result.RedirectTo
	renderPage(w, http.StatusOK, "approved.html", ApprovedPageData{
		pageBase: base,
		ClientID: pending.ClientID,
	})
}

// LogoutHandler ends the session and clears both cookies
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if token, err := cookie.GetSessionToken(r); err == nil {
		if err := h.sessions.Destroy(r.Context(), token); err != nil {
			log.LogErrorWithFields("auth", "Failed to destroy session", map[string]any{
				"error": err.Error(),
			})
		}
	}
	cookie.ClearSessionPair(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
