package middleware

import (
	"net/http"

	"gitea.com/go-chi/session"

	"github.com/blogem/gitlab-login/userctx"
)

// Session keys written by the user linking service
const (
	sessionUserID        = "user_id"
	sessionUserEmail     = "user_email"
	sessionRedirectAfter = "redirect_after_login"
)

// RequireAuth ensures the user is authenticated
// If not authenticated, redirects to /user/login and stores the intended destination
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.GetSession(r)
		userID, ok := sess.Get(sessionUserID).(string)

		if !ok || userID == "" {
			// Store the intended destination for redirect after login
			_ = sess.Set(sessionRedirectAfter, r.URL.RequestURI())
			http.Redirect(w, r, "/user/login", http.StatusSeeOther)
			return
		}

		ctx := userctx.SetUserID(r.Context(), userID)
		if email, ok := sess.Get(sessionUserEmail).(string); ok {
			ctx = userctx.SetUserEmail(ctx, email)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
