package services

import (
	"errors"
	"fmt"

	"github.com/blogem/gitlab-login/authenticator"
	"github.com/blogem/gitlab-login/settings"
)

// Reason names why an authorization flow failed
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonConfigurationMissing Reason = "ConfigurationMissing"
	ReasonUserCancelled        Reason = "UserCancelled"
	ReasonInvalidState         Reason = "InvalidState"
	ReasonTokenExchangeFailed  Reason = "TokenExchangeFailed"
	ReasonProfileFetchFailed   Reason = "ProfileFetchFailed"
	ReasonExtraEndpointFailed  Reason = "ExtraEndpointFailed"
	ReasonInternal             Reason = "Internal"
)

var (
	ErrInvalidState      = errors.New("invalid oauth2 state")
	ErrUserCancelled     = errors.New("user cancelled authentication")
	ErrSubjectMismatch   = errors.New("id token subject does not match profile id")
	ErrInvalidTransition = errors.New("invalid authorization flow transition")
)

// AuthError is returned by a flow that entered the Failed state
type AuthError struct {
	Reason Reason
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ReasonOf maps an error to its failure reason
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}

	switch {
	case errors.Is(err, settings.ErrConfigurationMissing):
		return ReasonConfigurationMissing
	case errors.Is(err, ErrUserCancelled):
		return ReasonUserCancelled
	case errors.Is(err, ErrInvalidState):
		return ReasonInvalidState
	case errors.Is(err, authenticator.ErrTokenExchangeFailed):
		return ReasonTokenExchangeFailed
	case errors.Is(err, authenticator.ErrProfileFetchFailed), errors.Is(err, ErrSubjectMismatch):
		return ReasonProfileFetchFailed
	case errors.Is(err, authenticator.ErrExtraEndpointFailed):
		return ReasonExtraEndpointFailed
	default:
		return ReasonInternal
	}
}
