package authenticator

import (
	"context"
	"crypto"
	"errors"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"
)

// IDTokenVerifier verifies an ID token and returns its subject
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (string, error)
}

// OpenIDVerifier implements IDTokenVerifier with OpenID Connect
type OpenIDVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOpenIDVerifier discovers the issuer's signing keys and returns a verifier
// for tokens issued to clientID
func NewOpenIDVerifier(ctx context.Context, issuer, clientID string) (*OpenIDVerifier, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if clientID == "" {
		return nil, errors.New("client ID is required")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}

	return &OpenIDVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// NewStaticOpenIDVerifier returns a verifier that trusts a fixed set of keys
func NewStaticOpenIDVerifier(issuer, clientID string, keys ...crypto.PublicKey) *OpenIDVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &OpenIDVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// Verify checks signature, issuer, audience and expiry
func (v *OpenIDVerifier) Verify(ctx context.Context, rawIDToken string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", err
	}
	if idToken.Subject == "" {
		return "", errors.New("id token has no subject")
	}
	return idToken.Subject, nil
}

// WantsIDToken reports whether the scopes request an OpenID Connect ID token
func WantsIDToken(scopes []string) bool {
	return slices.Contains(scopes, oidc.ScopeOpenID)
}
