package controllers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/blogem/gitlab-login/logger"
	"github.com/blogem/gitlab-login/models"
	"github.com/blogem/gitlab-login/repositories"
	"github.com/blogem/gitlab-login/userctx"
)

// AccountController shows the logged in user's linked account
type AccountController struct {
	identities repositories.IdentityRepository
	log        *zap.Logger
}

// NewAccountController creates a new account controller
func NewAccountController(identities repositories.IdentityRepository) *AccountController {
	return &AccountController{
		identities: identities,
		log:        logger.Named("controller"),
	}
}

// Index handles GET /account
func (c *AccountController) Index(w http.ResponseWriter, r *http.Request) {
	account, err := c.identities.GetByExternalID(r.Context(), userctx.GetUserID(r.Context()))
	if errors.Is(err, repositories.ErrAccountNotFound) {
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		return
	}
	if err != nil {
		c.log.Error("failed to load account", zap.Error(err))
		http.Error(w, "Failed to load account", http.StatusInternalServerError)
		return
	}

	templateData := struct {
		Title    string
		Messages []string
		Account  *models.LinkedAccount
	}{
		Title:    account.Name,
		Messages: popFlash(r),
		Account:  account,
	}

	if err := renderTemplate(w, "account.html", templateData); err != nil {
		c.log.Error("failed to render account page", logger.ExternalID(account.ExternalID), zap.Error(err))
	}
}
