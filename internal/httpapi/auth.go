package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const issuer = "postsched"

type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken returns an HS256 token whose subject is the owner account id.
func IssueToken(secret []byte, ownerID int64, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty jwt secret")
	}
	if ownerID <= 0 {
		return "", errors.New("owner id must be positive")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(ownerID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyToken validates signature, expiry and issuer and returns the owner id.
func VerifyToken(secret []byte, tokenStr string) (int64, error) {
	if len(secret) == 0 {
		return 0, errors.New("empty jwt secret")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return 0, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return 0, errors.New("invalid token")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}

type ctxKeyOwner struct{}

// OwnerFromContext returns the authenticated owner id.
func OwnerFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKeyOwner{}).(int64)
	return id, ok
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := RequestIDFromContext(r.Context())
		raw := r.Header.Get("Authorization")
		tokenStr, found := strings.CutPrefix(raw, "Bearer ")
		if !found || strings.TrimSpace(tokenStr) == "" {
			respondError(w, reqID, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		owner, err := VerifyToken(s.secret(), strings.TrimSpace(tokenStr))
		if err != nil {
			respondError(w, reqID, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyOwner{}, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
