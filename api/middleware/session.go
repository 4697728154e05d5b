package middleware

import (
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Session resolves the shopper session from the signed cookie. A missing,
// invalid or expired cookie starts a new session; a cookie past half its
// lifetime is re-issued for the same session.
func Session(cfg config.SessionConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	now := time.Now
	signer := pkgauth.NewSessionSigner(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sessionID := ""
			reissue := true

			if cookie, err := r.Cookie(cfg.CookieName); err == nil && cookie.Value != "" {
				claims, err := signer.Parse(cookie.Value)
				switch {
				case err != nil:
					if logg != nil {
						logg.Debug(logg.WithField(ctx, "error", err.Error()), "session cookie rejected, starting new session")
					}
				default:
					sessionID = claims.SessionID
					if claims.ExpiresAt != nil && claims.ExpiresAt.Sub(now()) > cfg.TTL/2 {
						reissue = false
					}
				}
			}
			if sessionID == "" {
				sessionID = pkgauth.NewSessionID()
			}

			if reissue {
				token, err := signer.Mint(now(), sessionID)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue session"))
					return
				}
				http.SetCookie(w, sessionCookie(cfg, token))
			}

			ctx = WithSessionID(ctx, sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionCookie(cfg config.SessionConfig, token string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	// the storefront runs on another origin; cross-site cookies need None+Secure
	if cfg.CookieSecure {
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie
}
