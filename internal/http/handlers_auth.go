package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"expensehub/internal/core"
	"expensehub/internal/log"
)

const sessionCookie = "expensehub_session"

type userContextKey struct{}

func withUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

func userFromContext(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(core.User)
	return u, ok
}

// requireSession lets requests with a valid session cookie through and
// sends everyone else to the login page. A session whose user no longer
// exists is cleared.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		claims, err := s.deps.Sessions.Parse(c.Value)
		if err != nil {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).DebugContext(r.Context(), "Rejected session cookie", log.FieldError, err)
			s.clearSession(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		user, err := s.deps.Auth.User(r.Context(), claims.UserID)
		if core.IsNotFound(err) {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Session user no longer exists", log.FieldUserID, claims.UserID)
			s.clearSession(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if err != nil {
			s.serverError(w, r, err)
			return
		}

		ctx := withUser(r.Context(), user)
		ctx = log.WithContext(ctx, log.FromContext(ctx).With(log.FieldUserID, user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loginPage struct {
	Title    string
	User     *core.User
	Username string
	Error    string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login.html", loginPage{Title: "Sign in"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	username := sanitizeInput(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")

	user, err := s.deps.Auth.Authenticate(r.Context(), username, password)
	if errors.Is(err, core.ErrInvalidCredentials) {
		log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Web login failed", "username", username)
		s.render(w, r, http.StatusUnauthorized, "login.html", loginPage{
			Title:    "Sign in",
			Username: username,
			Error:    "Unknown username or wrong password.",
		})
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	token, err := s.deps.Sessions.Issue(user.ID, user.Username)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.deps.Sessions.TTL() / time.Second),
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Web login", log.FieldUserID, user.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSession(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
