package controllers

import (
	"embed"
	"html/template"
	"net/http"

	"gitea.com/go-chi/session"

	"github.com/blogem/gitlab-login/repositories"
	"github.com/blogem/gitlab-login/services"
	"github.com/blogem/gitlab-login/sessionstore"
	"github.com/blogem/gitlab-login/settings"
)

//go:embed templates/*.html
var templateFiles embed.FS

// flashKey holds the user-facing messages shown on the next page
const flashKey = "flash_messages"

// renderTemplate renders a page inside the layout
func renderTemplate(w http.ResponseWriter, pageTemplate string, data interface{}) error {
	return renderTemplateWithStatus(w, http.StatusOK, pageTemplate, data)
}

// renderTemplateWithStatus renders a page inside the layout with the provided status code
func renderTemplateWithStatus(w http.ResponseWriter, statusCode int, pageTemplate string, data interface{}) error {
	tmpl, err := template.ParseFS(templateFiles, "templates/layout.html", "templates/"+pageTemplate)
	if err != nil {
		http.Error(w, "Failed to parse template", http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}

	return tmpl.ExecuteTemplate(w, "layout.html", data)
}

// addFlash queues a message for the next rendered page
func addFlash(r *http.Request, msg string) {
	sess := session.GetSession(r)
	messages, _ := sess.Get(flashKey).([]string)
	_ = sess.Set(flashKey, append(messages, msg))
}

// popFlash returns and clears the queued messages
func popFlash(r *http.Request) []string {
	sess := session.GetSession(r)
	messages, _ := sess.Get(flashKey).([]string)
	if len(messages) > 0 {
		_ = sess.Delete(flashKey)
	}
	return messages
}

// Controllers holds all controller instances
type Controllers struct {
	Auth    *AuthController
	Account *AccountController
}

// NewControllers creates and initializes all controller instances
func NewControllers(
	factory ClientFactory,
	s settings.Provider,
	sessions sessionstore.Resolver,
	srvs *services.Services,
	repos *repositories.Repositories,
) *Controllers {
	return &Controllers{
		Auth:    NewAuthController(factory, s, sessions, srvs.Users, repos.Audit),
		Account: NewAccountController(repos.Identity),
	}
}
