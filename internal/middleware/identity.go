package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"clinicore/internal/caching"
	"clinicore/internal/common"
	"clinicore/internal/session"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	invalidTokenLimit  = 20
	invalidTokenWindow = time.Minute
)

// TokenVerifier validates bearer tokens issued by the external identity
// provider. RS256 tokens are verified against the provider's JWKS; the shared
// HMAC secret remains as a fallback for local development tokens.
type TokenVerifier struct {
	jwks   *keyfunc.JWKS
	secret []byte
}

func NewTokenVerifier(jwksURL, secret string) (*TokenVerifier, error) {
	v := &TokenVerifier{secret: []byte(secret)}
	if jwksURL != "" {
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				log.Printf("WARN: JWKS refresh failed: %v", err)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("fetch JWKS: %w", err)
		}
		v.jwks = jwks
	}
	return v, nil
}

func (v *TokenVerifier) keyfunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		return v.secret, nil
	}
	if v.jwks != nil {
		return v.jwks.Keyfunc(token)
	}
	return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
}

// Verify parses and validates a raw bearer token.
func (v *TokenVerifier) Verify(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, v.keyfunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token not valid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	return claims, nil
}

// BlacklistKey derives the cache key under which a revoked token is parked
// until it expires on its own.
func BlacklistKey(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return "clinicore:blacklist:" + hex.EncodeToString(sum[:])
}

// IdentityMiddleware resolves the bearer token to an identity, drives the
// per-identity session machine, and stashes both on the request.
func IdentityMiddleware(verifier *TokenVerifier, cacheSvc caching.CacheService, registry *session.Registry, baseDomain string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing token")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token format")
			}

			clientIP := c.RealIP()
			if limited, err := cacheSvc.IsRateLimited(c.Request().Context(), clientIP, invalidTokenLimit, invalidTokenWindow); err == nil && limited {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many invalid tokens")
			}

			// A revoked token stays dead even though its signature still checks out.
			if _, err := cacheSvc.GetString(c.Request().Context(), BlacklistKey(tokenString)); err == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Token revoked")
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				_ = cacheSvc.IncrementRateLimit(c.Request().Context(), clientIP, invalidTokenWindow)
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			sub, ok := claims["sub"].(string)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing subject in token")
			}
			identityID, err := uuid.Parse(sub)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid subject format")
			}

			identity := &session.Identity{ID: identityID}
			if email, ok := claims["email"].(string); ok {
				identity.Email = email
			}
			if verified, ok := claims["email_verified"].(bool); ok {
				identity.EmailVerified = verified
			}

			routing := session.RoutingContext{
				Hostname:   c.Request().Host,
				BaseDomain: baseDomain,
			}

			sess, _ := registry.GetOrCreate(identityID)
			if sess.Current().Phase == session.PhaseUnauthenticated {
				sess.HandleSessionEvent(c.Request().Context(), identity, routing)
			}

			ctx := context.WithValue(c.Request().Context(), common.IdentityIDKey, identityID)
			if st := sess.Current(); st.ActiveTenant != nil {
				ctx = context.WithValue(ctx, common.TenantIDKey, st.ActiveTenant.ID)
			}
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(common.SessionContextKey, sess)

			return next(c)
		}
	}
}

// SessionFromContext pulls the session machine the identity middleware
// attached, or nil when the route is unauthenticated.
func SessionFromContext(c echo.Context) *session.Session {
	sess, _ := c.Get(common.SessionContextKey).(*session.Session)
	return sess
}
