package controllers

import (
	"context"
	"net/http"

	"gitea.com/go-chi/session"
	"go.uber.org/zap"

	"github.com/blogem/gitlab-login/authenticator"
	"github.com/blogem/gitlab-login/logger"
	"github.com/blogem/gitlab-login/metrics"
	"github.com/blogem/gitlab-login/middleware"
	"github.com/blogem/gitlab-login/models"
	"github.com/blogem/gitlab-login/repositories"
	"github.com/blogem/gitlab-login/services"
	"github.com/blogem/gitlab-login/sessionstore"
	"github.com/blogem/gitlab-login/settings"
)

const (
	LoginPath    = "/user/login"
	RedirectPath = "/user/login/gitlab"
	CallbackPath = "/user/login/gitlab/callback"
)

// outcomeComplete labels successful callbacks in metrics and the audit log
const outcomeComplete = "complete"

// ClientFactory builds the GitLab client for a request. It fails with
// settings.ErrConfigurationMissing while the provider is not configured.
type ClientFactory func(r *http.Request) (authenticator.Client, error)

// userMessages are the only failure texts shown to the browser
var userMessages = map[services.Reason]string{
	services.ReasonConfigurationMissing: "GitLab login is not configured properly. Contact the site administrator.",
	services.ReasonUserCancelled:        "You could not be authenticated.",
	services.ReasonInvalidState:         "GitLab login failed. Invalid OAuth2 state.",
	services.ReasonTokenExchangeFailed:  "GitLab login failed. Could not obtain an access token, please try again.",
	services.ReasonProfileFetchFailed:   "GitLab login failed, could not load your GitLab profile. Contact the site administrator.",
	services.ReasonInternal:             "GitLab login failed. Please try again.",
}

// UserMessage returns the browser-safe message for a failure reason
func UserMessage(reason services.Reason) string {
	if msg, ok := userMessages[reason]; ok {
		return msg
	}
	return userMessages[services.ReasonInternal]
}

// AuthController handles the GitLab redirect and callback
type AuthController struct {
	newClient ClientFactory
	settings  settings.Provider
	sessions  sessionstore.Resolver
	users     services.UserLinker
	audit     repositories.AuditRepository
	log       *zap.Logger
}

// NewAuthController creates a new auth controller. audit may be nil.
func NewAuthController(
	factory ClientFactory,
	s settings.Provider,
	sessions sessionstore.Resolver,
	users services.UserLinker,
	audit repositories.AuditRepository,
) *AuthController {
	return &AuthController{
		newClient: factory,
		settings:  s,
		sessions:  sessions,
		users:     users,
		audit:     audit,
		log:       logger.Named("controller"),
	}
}

// Login handles GET /user/login
func (ac *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Title    string
		Messages []string
	}{
		Title:    "Log in",
		Messages: popFlash(r),
	}

	if err := renderTemplate(w, "login.html", data); err != nil {
		ac.log.Error("failed to render login page", zap.Error(err))
	}
}

// Redirect sends the browser to GitLab's authorization endpoint
func (ac *AuthController) Redirect(w http.ResponseWriter, r *http.Request) {
	client, err := ac.newClient(r)
	if err != nil {
		ac.log.Error("gitlab client unavailable", zap.Error(err))
		ac.reject(w, r, services.ReasonConfigurationMissing)
		return
	}

	flow := services.NewAuthService(client, ac.settings).NewFlow(ac.sessions(r))
	req, err := flow.Begin(r.Context(), CallbackURL(r, ac.settings))
	if err != nil {
		ac.log.Error("failed to start gitlab authorization", zap.Error(err))
		ac.reject(w, r, services.ReasonOf(err))
		return
	}

	metrics.AuthRedirects.Inc()
	http.Redirect(w, r, req.URL, http.StatusFound)
}

// Callback handles the return from GitLab
func (ac *AuthController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	// The user declined consent or GitLab refused the request
	if providerErr := query.Get("error"); providerErr != "" {
		ac.log.Info("gitlab returned an authorization error", zap.String("error", providerErr))
		ac.record(ctx, r, services.ReasonUserCancelled, "", providerErr)
		ac.reject(w, r, services.ReasonUserCancelled)
		return
	}

	pending := ac.sessions(r)
	sessionID := session.GetSession(r).ID()

	client, err := ac.newClient(r)
	if err != nil {
		ac.log.Error("gitlab client unavailable", zap.Error(err))
		if err := pending.Clear(ctx, sessionstore.KeyState, sessionstore.KeyAccessToken); err != nil {
			ac.log.Error("failed to clear pending authorization", zap.Error(err))
		}
		ac.reject(w, r, services.ReasonConfigurationMissing)
		return
	}

	flow := services.NewAuthService(client, ac.settings).NewFlow(pending)

	profile, err := flow.Complete(ctx, query.Get("code"), query.Get("state"))
	if err != nil {
		ac.fail(w, r, err, "")
		return
	}

	linked, err := ac.users.IdentityIsLinked(ctx, profile.ExternalID)
	if err != nil {
		ac.fail(w, r, flow.Fail(ctx, services.ReasonInternal, err), profile.ExternalID)
		return
	}

	extra, err := flow.CollectExtraData(ctx, linked)
	if err != nil {
		ac.fail(w, r, flow.Fail(ctx, services.ReasonInternal, err), profile.ExternalID)
		return
	}

	token := flow.Token()
	if err := flow.Finish(); err != nil {
		ac.fail(w, r, flow.Fail(ctx, services.ReasonInternal, err), profile.ExternalID)
		return
	}

	err = ac.users.AuthenticateUser(w, r, services.AuthenticateRequest{
		Name:        profile.Name(),
		Email:       profile.Email,
		ExternalID:  profile.ExternalID,
		AccessToken: token.AccessToken,
		AvatarURL:   profile.AvatarURL,
		ExtraData:   extra,
	})
	if err != nil {
		ac.fail(w, r, flow.Fail(ctx, services.ReasonInternal, err), profile.ExternalID)
		return
	}

	if id := session.GetSession(r).ID(); id != sessionID {
		ac.movePending(ctx, pending, ac.sessions(r), token.AccessToken)
	}

	metrics.AuthOutcomes.WithLabelValues(outcomeComplete).Inc()
	ac.record(ctx, r, services.ReasonNone, profile.ExternalID, "")
	ac.log.Info("gitlab login complete", logger.ExternalID(profile.ExternalID), zap.Bool("first_login", !linked))
}

// Logout handles GET /logout
func (ac *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	sess := session.GetSession(r)
	for _, key := range []string{services.SessionUserID, services.SessionUserName, services.SessionUserEmail} {
		_ = sess.Delete(key)
	}
	_ = ac.sessions(r).Clear(r.Context(), sessionstore.KeyState, sessionstore.KeyAccessToken)

	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

// movePending re-keys the access token after the user linker rotated the
// session id. The old store is cleared first since both stores are the same
// session when pending data lives in the cookie session.
func (ac *AuthController) movePending(ctx context.Context, from, to sessionstore.Store, accessToken string) {
	if err := from.Clear(ctx, sessionstore.KeyState, sessionstore.KeyAccessToken); err != nil {
		ac.log.Error("failed to clear pending authorization", zap.Error(err))
	}
	if err := to.Set(ctx, sessionstore.KeyAccessToken, accessToken); err != nil {
		ac.log.Error("failed to store access token", zap.Error(err))
	}
}

// fail handles an error returned by a failed flow
func (ac *AuthController) fail(w http.ResponseWriter, r *http.Request, err error, externalID string) {
	reason := services.ReasonOf(err)

	fields := []zap.Field{logger.Reason(string(reason)), zap.Error(err)}
	if externalID != "" {
		fields = append(fields, logger.ExternalID(externalID))
	}
	if reason == services.ReasonInvalidState {
		ac.log.Warn("gitlab callback rejected", append(fields, logger.ClientIP(middleware.ClientIP(r)))...)
	} else {
		ac.log.Error("gitlab login failed", fields...)
	}

	ac.record(r.Context(), r, reason, externalID, err.Error())
	ac.reject(w, r, reason)
}

// reject flashes the user message for reason and sends the browser to the login page
func (ac *AuthController) reject(w http.ResponseWriter, r *http.Request, reason services.Reason) {
	metrics.AuthOutcomes.WithLabelValues(string(reason)).Inc()
	addFlash(r, UserMessage(reason))
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

// record writes an audit event; failures are logged and otherwise ignored
func (ac *AuthController) record(ctx context.Context, r *http.Request, reason services.Reason, externalID, detail string) {
	if ac.audit == nil {
		return
	}

	outcome := string(reason)
	if reason == services.ReasonNone {
		outcome = outcomeComplete
	}

	event := &models.AuthEvent{
		Outcome:    outcome,
		ExternalID: externalID,
		IPAddress:  middleware.ClientIP(r),
		UserAgent:  r.UserAgent(),
		Detail:     detail,
	}
	if err := ac.audit.Create(ctx, event); err != nil {
		ac.log.Error("failed to record auth event", zap.Error(err))
	}
}

// CallbackURL returns the configured redirect URL or derives it from the request
func CallbackURL(r *http.Request, s settings.Provider) string {
	if u := s.RedirectURL(); u != "" {
		return u
	}

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + CallbackPath
}
