package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/blogem/gitlab-login/authenticator"
	"github.com/blogem/gitlab-login/authenticator/mocks"
	"github.com/blogem/gitlab-login/sessionstore"
	"github.com/blogem/gitlab-login/settings"
)

// AuthFlowTestSuite is a test suite for the authorization state machine
type AuthFlowTestSuite struct {
	suite.Suite
	ctx        context.Context
	mockClient *mocks.MockClient
	settings   *settings.Settings
	store      sessionstore.Store
	service    *AuthService
}

// SetupTest sets up the test suite before each test
func (suite *AuthFlowTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.mockClient = mocks.NewMockClient(suite.T())
	suite.settings = &settings.Settings{
		ClientIDValue:     "client-id",
		ClientSecretValue: "client-secret",
		ScopesValue:       []string{"read_user", "api"},
		EndpointsValue: []settings.Endpoint{
			{Path: "/v4/user/keys", Name: "user_keys"},
			{Path: "/v4/user/emails", Name: "user_emails"},
		},
	}
	suite.store = sessionstore.NewMemoryBackend(time.Minute).Store("session")
	suite.service = NewAuthService(suite.mockClient, suite.settings)
}

func (suite *AuthFlowTestSuite) storedValue(key string) (string, error) {
	return suite.store.Get(suite.ctx, key)
}

// expectSuccessfulCallback wires the client for a valid exchange and profile fetch
func (suite *AuthFlowTestSuite) expectSuccessfulCallback() (*authenticator.Token, *authenticator.Profile) {
	token := &authenticator.Token{AccessToken: "gl-token"}
	profile := &authenticator.Profile{ExternalID: "42", Username: "jdoe", DisplayName: "John Doe", Email: "john@example.com"}
	suite.mockClient.EXPECT().ExchangeCode(mock.Anything, "code").Return(token, nil).Once()
	suite.mockClient.EXPECT().FetchResourceOwner(mock.Anything, token).Return(profile, nil).Once()
	return token, profile
}

// TestBegin_StoresState tests the redirect phase persists the state token
func (suite *AuthFlowTestSuite) TestBegin_StoresState() {
	suite.mockClient.EXPECT().AuthorizationURL([]string{"read_user", "api"}, "https://app/cb").
		Return(&authenticator.AuthorizationRequest{URL: "https://gitlab/oauth/authorize?state=abc", State: "abc"}, nil)

	flow := suite.service.NewFlow(suite.store)
	req, err := flow.Begin(suite.ctx, "https://app/cb")

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "abc", req.State)
	assert.Equal(suite.T(), StateAuthorizationRequested, flow.State())

	stored, err := suite.storedValue(sessionstore.KeyState)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "abc", stored)
}

// TestBegin_Twice tests a flow cannot be restarted
func (suite *AuthFlowTestSuite) TestBegin_Twice() {
	suite.mockClient.EXPECT().AuthorizationURL(mock.Anything, mock.Anything).
		Return(&authenticator.AuthorizationRequest{State: "abc"}, nil).Once()

	flow := suite.service.NewFlow(suite.store)
	_, err := flow.Begin(suite.ctx, "")
	require.NoError(suite.T(), err)

	_, err = flow.Begin(suite.ctx, "")
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)
}

// TestBegin_ClientError tests a state generation failure fails the flow
func (suite *AuthFlowTestSuite) TestBegin_ClientError() {
	suite.mockClient.EXPECT().AuthorizationURL(mock.Anything, mock.Anything).Return(nil, errors.New("entropy"))

	flow := suite.service.NewFlow(suite.store)
	_, err := flow.Begin(suite.ctx, "")

	assert.Error(suite.T(), err)
	assert.Equal(suite.T(), StateFailed, flow.State())
	_, err = suite.storedValue(sessionstore.KeyState)
	assert.ErrorIs(suite.T(), err, sessionstore.ErrNotFound)
}

// TestComplete_Success tests the happy path of the callback phase
func (suite *AuthFlowTestSuite) TestComplete_Success() {
	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyState, "state-1"))
	token, profile := suite.expectSuccessfulCallback()

	flow := suite.service.NewFlow(suite.store)
	got, err := flow.Complete(suite.ctx, "code", "state-1")

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), profile, got)
	assert.Equal(suite.T(), token, flow.Token())
	assert.Equal(suite.T(), StateProfileRetrieved, flow.State())

	_, err = suite.storedValue(sessionstore.KeyState)
	assert.ErrorIs(suite.T(), err, sessionstore.ErrNotFound, "state must be single use")

	accessToken, err := suite.storedValue(sessionstore.KeyAccessToken)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "gl-token", accessToken)
}

// TestComplete_StateMismatch tests a wrong state is rejected before any exchange
func (suite *AuthFlowTestSuite) TestComplete_StateMismatch() {
	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyState, "state-1"))
	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyAccessToken, "stale"))

	flow := suite.service.NewFlow(suite.store)
	_, err := flow.Complete(suite.ctx, "valid-code", "state-2")

	assert.ErrorIs(suite.T(), err, ErrInvalidState)
	assert.Equal(suite.T(), ReasonInvalidState, ReasonOf(err))
	assert.Equal(suite.T(), StateFailed, flow.State())
	assert.Equal(suite.T(), ReasonInvalidState, flow.Reason())

	_, err = suite.storedValue(sessionstore.KeyState)
	assert.ErrorIs(suite.T(), err, sessionstore.ErrNotFound)
	_, err = suite.storedValue(sessionstore.KeyAccessToken)
	assert.ErrorIs(suite.T(), err, sessionstore.ErrNotFound)

	suite.mockClient.AssertNotCalled(suite.T(), "ExchangeCode", mock.Anything, mock.Anything)
}

// TestComplete_MissingState tests absent or empty states never match
func (suite *AuthFlowTestSuite) TestComplete_MissingState() {
	flow := suite.service.NewFlow(suite.store)
	_, err := flow.Complete(suite.ctx, "code", "")
	assert.Equal(suite.T(), ReasonInvalidState, ReasonOf(err))

	flow = suite.service.NewFlow(suite.store)
	_, err = flow.Complete(suite.ctx, "code", "state-1")
	assert.Equal(suite.T(), ReasonInvalidState, ReasonOf(err))

	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyState, "state-1"))
	flow = suite.service.NewFlow(suite.store)
	_, err = flow.Complete(suite.ctx, "code", "")
	assert.Equal(suite.T(), ReasonInvalidState, ReasonOf(err))
}

// TestComplete_Replay tests a replayed callback fails once the state was consumed
func (suite *AuthFlowTestSuite) TestComplete_Replay() {
	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyState, "state-1"))
	suite.expectSuccessfulCallback()

	_, err := suite.service.NewFlow(suite.store).Complete(suite.ctx, "code", "state-1")
	require.NoError(suite.T(), err)

	_, err = suite.service.NewFlow(suite.store).Complete(suite.ctx, "code", "state-1")
	assert.Equal(suite.T(), ReasonInvalidState, ReasonOf(err))
}

// TestComplete_TokenExchangeFailed tests a provider error during exchange
func (suite *AuthFlowTestSuite) TestComplete_TokenExchangeFailed() {
	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyState, "state-1"))
	suite.mockClient.EXPECT().ExchangeCode(mock.Anything, "code").
		Return(nil, authenticator.ErrTokenExchangeFailed)

	flow := suite.service.NewFlow(suite.store)
	_, err := flow.Complete(suite.ctx, "code", "state-1")

	assert.Equal(suite.T(), ReasonTokenExchangeFailed, ReasonOf(err))
	assert.Equal(suite.T(), StateFailed, flow.State())
	assert.Nil(suite.T(), flow.Token())
	_, err = suite.storedValue(sessionstore.KeyAccessToken)
	assert.ErrorIs(suite.T(), err, sessionstore.ErrNotFound)
}

// TestComplete_ProfileFetchFailed tests a provider error fetching the user
func (suite *AuthFlowTestSuite) TestComplete_ProfileFetchFailed() {
	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyState, "state-1"))
	token := &authenticator.Token{AccessToken: "gl-token"}
	suite.mockClient.EXPECT().ExchangeCode(mock.Anything, "code").Return(token, nil)
	suite.mockClient.EXPECT().FetchResourceOwner(mock.Anything, token).
		Return(nil, authenticator.ErrProfileFetchFailed)

	flow := suite.service.NewFlow(suite.store)
	_, err := flow.Complete(suite.ctx, "code", "state-1")

	assert.Equal(suite.T(), ReasonProfileFetchFailed, ReasonOf(err))
	_, err = suite.storedValue(sessionstore.KeyAccessToken)
	assert.ErrorIs(suite.T(), err, sessionstore.ErrNotFound)
}

// TestComplete_SubjectMismatch tests a verified ID token must belong to the profile
func (suite *AuthFlowTestSuite) TestComplete_SubjectMismatch() {
	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyState, "state-1"))
	token := &authenticator.Token{AccessToken: "gl-token", Subject: "7"}
	suite.mockClient.EXPECT().ExchangeCode(mock.Anything, "code").Return(token, nil)
	suite.mockClient.EXPECT().FetchResourceOwner(mock.Anything, token).
		Return(&authenticator.Profile{ExternalID: "42"}, nil)

	_, err := suite.service.NewFlow(suite.store).Complete(suite.ctx, "code", "state-1")

	assert.ErrorIs(suite.T(), err, ErrSubjectMismatch)
	assert.Equal(suite.T(), ReasonProfileFetchFailed, ReasonOf(err))
}

// TestCollectExtraData_PreservesOrder tests results follow declaration order
// even when the first endpoint answers last
func (suite *AuthFlowTestSuite) TestCollectExtraData_PreservesOrder() {
	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyState, "state-1"))
	token, _ := suite.expectSuccessfulCallback()
	suite.mockClient.EXPECT().FetchEndpoint(mock.Anything, token, "/v4/user/keys", "42").
		After(80*time.Millisecond).Return(json.RawMessage(`[{"id":1}]`), nil).Once()
	suite.mockClient.EXPECT().FetchEndpoint(mock.Anything, token, "/v4/user/emails", "42").
		Return(json.RawMessage(`[{"email":"john@example.com"}]`), nil).Once()

	flow := suite.service.NewFlow(suite.store)
	_, err := flow.Complete(suite.ctx, "code", "state-1")
	require.NoError(suite.T(), err)

	data, err := flow.CollectExtraData(suite.ctx, false)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), data, 2)
	assert.Equal(suite.T(), "user_keys", data[0].Name)
	assert.JSONEq(suite.T(), `[{"id":1}]`, string(data[0].Data))
	assert.Equal(suite.T(), "user_emails", data[1].Name)
	assert.Equal(suite.T(), StateExtraDataCollected, flow.State())

	require.NoError(suite.T(), flow.Finish())
	assert.Equal(suite.T(), StateComplete, flow.State())
}

// TestCollectExtraData_ContinuesOnError tests one failing endpoint does not stop the rest
func (suite *AuthFlowTestSuite) TestCollectExtraData_ContinuesOnError() {
	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyState, "state-1"))
	token, _ := suite.expectSuccessfulCallback()
	suite.mockClient.EXPECT().FetchEndpoint(mock.Anything, token, "/v4/user/keys", "42").
		Return(nil, authenticator.ErrExtraEndpointFailed)
	suite.mockClient.EXPECT().FetchEndpoint(mock.Anything, token, "/v4/user/emails", "42").
		Return(json.RawMessage(`[]`), nil)

	flow := suite.service.NewFlow(suite.store)
	_, err := flow.Complete(suite.ctx, "code", "state-1")
	require.NoError(suite.T(), err)

	data, err := flow.CollectExtraData(suite.ctx, false)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), data, 2)
	assert.ErrorIs(suite.T(), data[0].Err, authenticator.ErrExtraEndpointFailed)
	assert.NoError(suite.T(), data[1].Err)

	encoded, err := json.Marshal(data)
	require.NoError(suite.T(), err)
	assert.Contains(suite.T(), string(encoded), `"error":"extra endpoint request failed"`)
}

// TestCollectExtraData_AlreadyLinked tests returning users never trigger collection
func (suite *AuthFlowTestSuite) TestCollectExtraData_AlreadyLinked() {
	require.NoError(suite.T(), suite.store.Set(suite.ctx, sessionstore.KeyState, "state-1"))
	suite.expectSuccessfulCallback()

	flow := suite.service.NewFlow(suite.store)
	_, err := flow.Complete(suite.ctx, "code", "state-1")
	require.NoError(suite.T(), err)

	data, err := flow.CollectExtraData(suite.ctx, true)
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), data)
	suite.mockClient.AssertNotCalled(suite.T(), "FetchEndpoint", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	require.NoError(suite.T(), flow.Finish())
}

// TestCollectExtraData_BeforeProfile tests the transition guard
func (suite *AuthFlowTestSuite) TestCollectExtraData_BeforeProfile() {
	flow := suite.service.NewFlow(suite.store)
	_, err := flow.CollectExtraData(suite.ctx, false)
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)
	assert.ErrorIs(suite.T(), flow.Finish(), ErrInvalidTransition)
}

// TestAuthFlowTestSuite runs the auth flow test suite
func TestAuthFlowTestSuite(t *testing.T) {
	suite.Run(t, new(AuthFlowTestSuite))
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, ReasonNone, ReasonOf(nil))
	assert.Equal(t, ReasonConfigurationMissing, ReasonOf(settings.ErrConfigurationMissing))
	assert.Equal(t, ReasonUserCancelled, ReasonOf(ErrUserCancelled))
	assert.Equal(t, ReasonTokenExchangeFailed, ReasonOf(errors.Join(errors.New("x"), authenticator.ErrTokenExchangeFailed)))
	assert.Equal(t, ReasonExtraEndpointFailed, ReasonOf(authenticator.ErrExtraEndpointFailed))
	assert.Equal(t, ReasonInternal, ReasonOf(errors.New("boom")))
	assert.Equal(t, ReasonInvalidState, ReasonOf(&AuthError{Reason: ReasonInvalidState, Err: ErrInvalidState}))
}

func TestFlowStateString(t *testing.T) {
	assert.Equal(t, "TokenExchanged", StateTokenExchanged.String())
	assert.Equal(t, "FlowState(99)", FlowState(99).String())
}
