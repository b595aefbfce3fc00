package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gitea.com/go-chi/session"
	"go.uber.org/zap"

	"github.com/blogem/gitlab-login/logger"
	"github.com/blogem/gitlab-login/models"
	"github.com/blogem/gitlab-login/repositories"
)

// Session keys of a logged in user
const (
	SessionUserID        = "user_id"
	SessionUserName      = "user_name"
	SessionUserEmail     = "user_email"
	SessionRedirectAfter = "redirect_after_login"
)

// AuthenticateRequest is a verified GitLab identity handed to the user linker
type AuthenticateRequest struct {
	Name        string
	Email       string
	ExternalID  string
	AccessToken string
	AvatarURL   string
	// ExtraData is nil unless this is the identity's first login
	ExtraData []ExtraData
}

// UserLinker maps GitLab identities to local accounts and logs users in
type UserLinker interface {
	IdentityIsLinked(ctx context.Context, externalID string) (bool, error)
	// AuthenticateUser writes the response that concludes the login and may
	// rotate the session id. When it returns an error no redirect was written.
	AuthenticateUser(w http.ResponseWriter, r *http.Request, req AuthenticateRequest) error
}

// UserLinkingService stores linked accounts in the database and keeps the
// logged in user in the cookie session
type UserLinkingService struct {
	identities repositories.IdentityRepository
	log        *zap.Logger
}

// NewUserLinkingService creates a new user linking service
func NewUserLinkingService(identities repositories.IdentityRepository) *UserLinkingService {
	return &UserLinkingService{
		identities: identities,
		log:        logger.Named("users"),
	}
}

func (s *UserLinkingService) IdentityIsLinked(ctx context.Context, externalID string) (bool, error) {
	return s.identities.Exists(ctx, externalID)
}

func (s *UserLinkingService) AuthenticateUser(w http.ResponseWriter, r *http.Request, req AuthenticateRequest) error {
	ctx := r.Context()

	account := &models.LinkedAccount{
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Email:      req.Email,
		AvatarURL:  req.AvatarURL,
	}

	err := s.identities.RecordLogin(ctx, account)
	if errors.Is(err, repositories.ErrAccountNotFound) {
		if req.ExtraData != nil {
			data, err := json.Marshal(req.ExtraData)
			if err != nil {
				return fmt.Errorf("failed to encode extra data: %w", err)
			}
			account.ExtraData = string(data)
		}
		err = s.identities.Create(ctx, account)
		if err == nil {
			s.log.Info("linked new gitlab account", logger.ExternalID(req.ExternalID))
		}
	}
	if err != nil {
		return err
	}

	// A session id handed out before login must not become authenticated
	sess, err := session.RegenerateSession(w, r)
	if err != nil {
		return fmt.Errorf("failed to regenerate session: %w", err)
	}
	if err := sess.Set(SessionUserID, account.ExternalID); err != nil {
		return fmt.Errorf("failed to store user in session: %w", err)
	}
	_ = sess.Set(SessionUserName, account.Name)
	_ = sess.Set(SessionUserEmail, account.Email)

	destination := "/account"
	if next, ok := sess.Get(SessionRedirectAfter).(string); ok && next != "" {
		destination = next
		_ = sess.Delete(SessionRedirectAfter)
	}

	http.Redirect(w, r, destination, http.StatusSeeOther)
	return nil
}
