// Package identity provides anonymous per-browser shopper identity.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

const (
	// ShopperCookieName is the HttpOnly cookie carrying the shopper ID.
	ShopperCookieName = "haggle_shopper_id"

	shopperCookieMaxAge = 180 * 24 * time.Hour
)

type contextKey int

const shopperIDKey contextKey = iota

var shopperIDPattern = regexp.MustCompile(`^shopper_[a-f0-9]{32}$`)

// ShopperIDFromContext extracts the shopper ID from the request context.
func ShopperIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(shopperIDKey).(string); ok {
		return v
	}
	return ""
}

// WithShopperID returns a context carrying the given shopper ID. Exposed for
// handlers composed outside the middleware (and for tests).
func WithShopperID(ctx context.Context, shopperID string) context.Context {
	return context.WithValue(ctx, shopperIDKey, shopperID)
}

func generateShopperID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate shopper id: %w", err)
	}
	return "shopper_" + hex.EncodeToString(buf), nil
}

func isValidShopperID(id string) bool {
	return shopperIDPattern.MatchString(id)
}

func setShopperCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ShopperCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(shopperCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(shopperCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateShopperID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(ShopperCookieName); err == nil && isValidShopperID(c.Value) {
		// Refresh expiry on every visit.
		setShopperCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateShopperID()
	if err != nil {
		return "", err
	}
	setShopperCookie(w, id, isDev)
	return id, nil
}

// Middleware injects anonymous per-browser shopper identity into the request
// context, minting a cookie on first contact.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			shopperID, err := getOrCreateShopperID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish shopper identity"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithShopperID(r.Context(), shopperID)))
		})
	}
}
