package authenticator

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
	ErrExtraEndpointFailed = errors.New("extra endpoint request failed")
)

// AuthorizationRequest is one redirect to the provider's authorization endpoint
type AuthorizationRequest struct {
	URL         string
	State       string
	Scopes      []string
	RedirectURI string
}

// Token represents an authentication token
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	IDToken      string
	Expiry       int64
	// Subject is set when the ID token was verified
	Subject string
}

// Profile is the resource owner returned by the provider
type Profile struct {
	ExternalID  string
	Username    string
	DisplayName string
	Email       string
	AvatarURL   string
}

// Name returns the display name, falling back to the username
func (p *Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// Client abstracts the OAuth2 mechanics of the provider
type Client interface {
	AuthorizationURL(scopes []string, redirectURI string) (*AuthorizationRequest, error)
	ExchangeCode(ctx context.Context, code string) (*Token, error)
	FetchResourceOwner(ctx context.Context, token *Token) (*Profile, error)
	FetchEndpoint(ctx context.Context, token *Token, pathTemplate, userID string) (json.RawMessage, error)
}
