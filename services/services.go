package services

import (
	"github.com/blogem/gitlab-login/repositories"
)

// Services holds all service instances
type Services struct {
	Users *UserLinkingService
}

// NewServices creates and initializes all service instances
func NewServices(repos *repositories.Repositories) *Services {
	return &Services{
		Users: NewUserLinkingService(repos.Identity),
	}
}
