package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"companion-billing/internal/infra/logging"
)

var errMissingToken = errors.New("missing bearer token")

// Authenticator verifies HS256 bearer tokens issued by the account service
// and puts the subject into the request context as the user id.
type Authenticator struct {
	secret []byte
	issuer string
	log    *zerolog.Logger
}

func NewAuthenticator(secret, issuer string, logger *zerolog.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, log: logger}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.userID(r)
		if err != nil {
			l := logging.With(r.Context(), a.log)
			l.Debug().Err(err).Msg("rejected bearer token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := logging.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) userID(r *http.Request) (string, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return "", errMissingToken
	}
	raw := strings.TrimSpace(hdr[7:])
	if raw == "" {
		return "", errMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return a.secret, nil }, opts...)
	if err != nil || !tkn.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
