package app

import (
	"net/http"
	"strings"

	"github.com/calsync/calsync/internal/rest"
	"github.com/calsync/calsync/pkg/google"
	"github.com/calsync/calsync/pkg/user"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies) {
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			log.Debugf("%s %s", req.Method, req.URL.Path)
			next.ServeHTTP(w, req)
		})
	})
	r.Use(bearerAuth(deps.Authenticator))
}

// bearerAuth puts the user owning the bearer token into the request context. The
// OAuth callback is reached by a browser redirect and is exempt.
func bearerAuth(authenticator user.Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, "/api/") || req.URL.Path == google.CallbackPath {
				next.ServeHTTP(w, req)
				return
			}

			token, ok := user.BearerToken(req.Header.Get("Authorization"))
			if !ok {
				rest.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			u, err := authenticator.Authenticate(token)
			if err != nil {
				log.Debugf("rejected request to %s: %v", req.URL.Path, err)
				rest.WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			log.Tracef("authenticated %s", u.Name)
			next.ServeHTTP(w, req.WithContext(user.WithUser(req.Context(), u)))
		})
	}
}
