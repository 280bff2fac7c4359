package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CronSecretHeader carries the pre-shared sweep secret.
const CronSecretHeader = "X-Cron-Secret"

// CronAuth gates the sweep operation. A caller is trusted when the
// platform cron header is present (the ingress strips it from external
// traffic) or when it presents the pre-shared secret.
type CronAuth struct {
	secret        string
	trustedHeader string
}

func NewCronAuth(secret, trustedHeader string) *CronAuth {
	return &CronAuth{secret: secret, trustedHeader: trustedHeader}
}

// Authorize reports whether the request may trigger a sweep. It reads
// no delivery state; rejection happens before any database access.
func (a *CronAuth) Authorize(r *http.Request) bool {
	if a.trustedHeader != "" && r.Header.Get(a.trustedHeader) != "" {
		return true
	}
	if a.secret == "" {
		return false
	}
	got := r.Header.Get(CronSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.secret)) == 1
}

// DispatcherValidator validates HS256 bearer tokens presented by the
// platform dispatcher on the deliver operation. A nil validator (no
// secret configured) disables the check for closed-network deployments.
type DispatcherValidator struct {
	secret []byte
	issuer string
}

func NewDispatcherValidator(secret, issuer string) *DispatcherValidator {
	if secret == "" {
		return nil
	}
	return &DispatcherValidator{secret: []byte(secret), issuer: issuer}
}

// ValidateToken parses and validates a bearer token string.
func (v *DispatcherValidator) ValidateToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// Middleware returns an HTTP middleware enforcing dispatcher auth. A
// nil receiver passes every request through.
func (v *DispatcherValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v == nil {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, `{"error":"invalid authorization header format"}`, http.StatusUnauthorized)
			return
		}
		if err := v.ValidateToken(tokenString); err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
