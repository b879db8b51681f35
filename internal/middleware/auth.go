package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const MerchantIDKey contextKey = "merchant_id"

// Claims identifies the merchant calling the payments API. The merchant id is
// carried in merchant_id, falling back to the registered subject.
type Claims struct {
	MerchantID string `json:"merchant_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) merchant() string {
	if c.MerchantID != "" {
		return c.MerchantID
	}
	return c.Subject
}

// RequireAuth accepts HS256 bearer tokens signed with jwtSecret. An empty
// secret disables the check, which config validation forbids in production.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if jwtSecret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header", "auth_required")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, "invalid authorization scheme", "auth_invalid_scheme")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method")
				}
				return []byte(jwtSecret), nil
			}, jwt.WithExpirationRequired())

			if err != nil || !token.Valid {
				writeAuthError(w, "invalid token", "auth_invalid")
				return
			}
			if claims.merchant() == "" {
				writeAuthError(w, "token has no merchant", "auth_invalid")
				return
			}

			ctx := context.WithValue(r.Context(), MerchantIDKey, claims.merchant())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IssueToken signs a merchant token valid for ttl.
func IssueToken(jwtSecret, merchantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		MerchantID: merchantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   merchantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

func GetMerchantID(ctx context.Context) (string, bool) {
	merchantID, ok := ctx.Value(MerchantIDKey).(string)
	return merchantID, ok
}

func writeAuthError(w http.ResponseWriter, msg, code string) {
	writeJSONError(w, http.StatusUnauthorized, msg, code)
}

func writeJSONError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  code,
	})
}
