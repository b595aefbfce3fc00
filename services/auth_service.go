package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blogem/gitlab-login/authenticator"
	"github.com/blogem/gitlab-login/logger"
	"github.com/blogem/gitlab-login/metrics"
	"github.com/blogem/gitlab-login/sessionstore"
	"github.com/blogem/gitlab-login/settings"
)

// maxConcurrentEndpoints bounds the extra data requests in flight
const maxConcurrentEndpoints = 4

// FlowState is a step of the authorization code flow
type FlowState int

const (
	StateIdle FlowState = iota
	StateAuthorizationRequested
	StateTokenExchanged
	StateProfileRetrieved
	StateExtraDataCollected
	StateComplete
	StateFailed
)

func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAuthorizationRequested:
		return "AuthorizationRequested"
	case StateTokenExchanged:
		return "TokenExchanged"
	case StateProfileRetrieved:
		return "ProfileRetrieved"
	case StateExtraDataCollected:
		return "ExtraDataCollected"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("FlowState(%d)", int(s))
	}
}

// ExtraData is the payload of one configured endpoint
type ExtraData struct {
	Name string
	Path string
	Data json.RawMessage
	Err  error
}

func (d ExtraData) MarshalJSON() ([]byte, error) {
	out := struct {
		Name  string          `json:"name"`
		Path  string          `json:"path"`
		Data  json.RawMessage `json:"data,omitempty"`
		Error string          `json:"error,omitempty"`
	}{Name: d.Name, Path: d.Path, Data: d.Data}
	if d.Err != nil {
		out.Error = d.Err.Error()
	}
	return json.Marshal(out)
}

// AuthService drives GitLab authorizations. It is safe for concurrent use;
// per-request state lives in the AuthFlow it creates.
type AuthService struct {
	client   authenticator.Client
	settings settings.Provider
	log      *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(client authenticator.Client, s settings.Provider) *AuthService {
	return &AuthService{
		client:   client,
		settings: s,
		log:      logger.Named("auth"),
	}
}

// NewFlow starts an Idle flow bound to one session
func (s *AuthService) NewFlow(store sessionstore.Store) *AuthFlow {
	return &AuthFlow{svc: s, store: store, state: StateIdle}
}

// AuthFlow is one pass through the authorization state machine. The redirect
// and the callback are separate requests, each with its own flow; the stored
// state token is what links them.
type AuthFlow struct {
	svc     *AuthService
	store   sessionstore.Store
	state   FlowState
	reason  Reason
	token   *authenticator.Token
	profile *authenticator.Profile
}

func (f *AuthFlow) State() FlowState                { return f.state }
func (f *AuthFlow) Reason() Reason                  { return f.reason }
func (f *AuthFlow) Token() *authenticator.Token     { return f.token }
func (f *AuthFlow) Profile() *authenticator.Profile { return f.profile }

// Begin builds the authorization URL and stores its state token in the session
func (f *AuthFlow) Begin(ctx context.Context, redirectURI string) (*authenticator.AuthorizationRequest, error) {
	if f.state != StateIdle {
		return nil, f.badTransition("begin")
	}

	req, err := f.svc.client.AuthorizationURL(f.svc.settings.Scopes(), redirectURI)
	if err != nil {
		return nil, f.Fail(ctx, ReasonInternal, err)
	}

	if err := f.store.Set(ctx, sessionstore.KeyState, req.State); err != nil {
		return nil, f.Fail(ctx, ReasonInternal, err)
	}

	f.state = StateAuthorizationRequested
	return req, nil
}

// Complete validates the returned state, exchanges the code and fetches the
// profile. The stored state is consumed, so replaying a callback fails.
func (f *AuthFlow) Complete(ctx context.Context, code, returnedState string) (*authenticator.Profile, error) {
	if f.state != StateIdle && f.state != StateAuthorizationRequested {
		return nil, f.badTransition("complete")
	}

	stored, err := f.store.Get(ctx, sessionstore.KeyState)
	if err != nil && !errors.Is(err, sessionstore.ErrNotFound) {
		f.svc.log.Error("failed to read stored state", zap.Error(err))
	}
	if !statesMatch(stored, returnedState) {
		f.svc.log.Warn("rejected callback with invalid oauth2 state",
			zap.Bool("stored_present", stored != ""),
			zap.Bool("returned_present", returnedState != ""))
		return nil, f.Fail(ctx, ReasonInvalidState, ErrInvalidState)
	}

	if err := f.store.Clear(ctx, sessionstore.KeyState); err != nil {
		return nil, f.Fail(ctx, ReasonInternal, err)
	}
	f.state = StateAuthorizationRequested

	start := time.Now()
	token, err := f.svc.client.ExchangeCode(ctx, code)
	metrics.ProviderLatency.WithLabelValues("token").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, f.Fail(ctx, ReasonTokenExchangeFailed, err)
	}
	f.token = token
	f.state = StateTokenExchanged

	start = time.Now()
	profile, err := f.svc.client.FetchResourceOwner(ctx, token)
	metrics.ProviderLatency.WithLabelValues("user").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, f.Fail(ctx, ReasonProfileFetchFailed, err)
	}
	if token.Subject != "" && token.Subject != profile.ExternalID {
		return nil, f.Fail(ctx, ReasonProfileFetchFailed, ErrSubjectMismatch)
	}

	if err := f.store.Set(ctx, sessionstore.KeyAccessToken, token.AccessToken); err != nil {
		return nil, f.Fail(ctx, ReasonInternal, err)
	}

	f.profile = profile
	f.state = StateProfileRetrieved
	return profile, nil
}

// CollectExtraData fetches the configured endpoints on first login. Endpoints
// are requested concurrently; the result follows declaration order and a
// failing endpoint is recorded in its entry without stopping the others.
func (f *AuthFlow) CollectExtraData(ctx context.Context, alreadyLinked bool) ([]ExtraData, error) {
	if f.state != StateProfileRetrieved {
		return nil, f.badTransition("collect extra data")
	}
	if alreadyLinked {
		return nil, nil
	}

	endpoints := f.svc.settings.Endpoints()
	results := make([]ExtraData, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEndpoints)
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			start := time.Now()
			data, err := f.svc.client.FetchEndpoint(gctx, f.token, ep.Path, f.profile.ExternalID)
			metrics.ProviderLatency.WithLabelValues("endpoint").Observe(time.Since(start).Seconds())

			results[i] = ExtraData{Name: ep.Name, Path: ep.Path, Data: data, Err: err}
			if err != nil {
				metrics.ExtraEndpointFailures.WithLabelValues(ep.Name).Inc()
				f.svc.log.Warn("extra endpoint failed",
					logger.Endpoint(ep.Name),
					logger.ExternalID(f.profile.ExternalID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	f.state = StateExtraDataCollected
	return results, nil
}

// Finish marks a flow whose profile was handed to the user linker as complete
func (f *AuthFlow) Finish() error {
	if f.state != StateProfileRetrieved && f.state != StateExtraDataCollected {
		return f.badTransition("finish")
	}
	f.state = StateComplete
	return nil
}

// Fail moves the flow to Failed and scrubs the pending session data
func (f *AuthFlow) Fail(ctx context.Context, reason Reason, err error) error {
	f.state = StateFailed
	f.reason = reason
	f.token = nil
	f.profile = nil

	if clearErr := f.store.Clear(ctx, sessionstore.KeyState, sessionstore.KeyAccessToken); clearErr != nil {
		f.svc.log.Error("failed to clear pending session", zap.Error(clearErr))
	}

	return &AuthError{Reason: reason, Err: err}
}

func (f *AuthFlow) badTransition(op string) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, op, f.state)
}

func statesMatch(stored, returned string) bool {
	if stored == "" || returned == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(returned)) == 1
}
