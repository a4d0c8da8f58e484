package auth

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/jonwraymond/ragcache/observe"
)

// Middleware authenticates every request with authn. A nil authn lets
// requests through as Anonymous. Failures get a 401 JSON body; internal
// errors get a 500.
func Middleware(authn Authenticator, logger observe.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authn == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Anonymous())))
				return
			}

			id, err := authn.Authenticate(r.Context(), r)
			if err != nil {
				if isCredentialError(err) {
					logger.Warn(r.Context(), "authentication failed",
						observe.F("path", r.URL.Path), observe.F("error", err.Error()))
					w.Header().Set("WWW-Authenticate", `Bearer realm="ragcache"`)
					writeError(w, http.StatusUnauthorized, err)
					return
				}
				logger.Error(r.Context(), "authenticator failed", observe.F("error", err.Error()))
				writeError(w, http.StatusInternalServerError, errors.New("authentication unavailable"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func isCredentialError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
