// Package mocks holds testify mocks of the authenticator interfaces.
package mocks

import (
	context "context"
	json "encoding/json"

	authenticator "github.com/blogem/gitlab-login/authenticator"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client type
type MockClient struct {
	mock.Mock
}

type MockClient_Expecter struct {
	mock *mock.Mock
}

func (_m *MockClient) EXPECT() *MockClient_Expecter {
	return &MockClient_Expecter{mock: &_m.Mock}
}

// AuthorizationURL provides a mock function with given fields: scopes, redirectURI
func (_m *MockClient) AuthorizationURL(scopes []string, redirectURI string) (*authenticator.AuthorizationRequest, error) {
	ret := _m.Called(scopes, redirectURI)

	var r0 *authenticator.AuthorizationRequest
	if rf, ok := ret.Get(0).(func([]string, string) *authenticator.AuthorizationRequest); ok {
		r0 = rf(scopes, redirectURI)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*authenticator.AuthorizationRequest)
	}

	return r0, ret.Error(1)
}

func (_e *MockClient_Expecter) AuthorizationURL(scopes interface{}, redirectURI interface{}) *mock.Call {
	return _e.mock.On("AuthorizationURL", scopes, redirectURI)
}

// ExchangeCode provides a mock function with given fields: ctx, code
func (_m *MockClient) ExchangeCode(ctx context.Context, code string) (*authenticator.Token, error) {
	ret := _m.Called(ctx, code)

	var r0 *authenticator.Token
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*authenticator.Token)
	}

	return r0, ret.Error(1)
}

func (_e *MockClient_Expecter) ExchangeCode(ctx interface{}, code interface{}) *mock.Call {
	return _e.mock.On("ExchangeCode", ctx, code)
}

// FetchResourceOwner provides a mock function with given fields: ctx, token
func (_m *MockClient) FetchResourceOwner(ctx context.Context, token *authenticator.Token) (*authenticator.Profile, error) {
	ret := _m.Called(ctx, token)

	var r0 *authenticator.Profile
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*authenticator.Profile)
	}

	return r0, ret.Error(1)
}

func (_e *MockClient_Expecter) FetchResourceOwner(ctx interface{}, token interface{}) *mock.Call {
	return _e.mock.On("FetchResourceOwner", ctx, token)
}

// FetchEndpoint provides a mock function with given fields: ctx, token, pathTemplate, userID
func (_m *MockClient) FetchEndpoint(ctx context.Context, token *authenticator.Token, pathTemplate string, userID string) (json.RawMessage, error) {
	ret := _m.Called(ctx, token, pathTemplate, userID)

	var r0 json.RawMessage
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(json.RawMessage)
	}

	return r0, ret.Error(1)
}

func (_e *MockClient_Expecter) FetchEndpoint(ctx interface{}, token interface{}, pathTemplate interface{}, userID interface{}) *mock.Call {
	return _e.mock.On("FetchEndpoint", ctx, token, pathTemplate, userID)
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
