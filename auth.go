package main

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// closeCodeUnauthorized is the WebSocket close code sent when the bearer
// handshake fails. 4xxx codes are reserved for application use.
const closeCodeUnauthorized = 4401

// ErrUnauthorized is returned when the connection handshake carries a
// missing or invalid bearer credential.
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator validates the bearer credential presented at connection
// open. With a JWT secret configured the credential must be a valid HS256
// token; otherwise it is compared against the static API token. With
// neither configured every connection is accepted.
type Authenticator struct {
	apiToken  string
	jwtSecret []byte
}

func NewAuthenticator(apiToken, jwtSecret string) *Authenticator {
	a := &Authenticator{apiToken: apiToken}
	if jwtSecret != "" {
		a.jwtSecret = []byte(jwtSecret)
	}
	return a
}

// Enabled reports whether connections must authenticate at all.
func (a *Authenticator) Enabled() bool {
	return a.apiToken != "" || len(a.jwtSecret) > 0
}

// Authorize checks the request's Authorization header. It is called once
// per connection, before the connection reaches the open state.
func (a *Authenticator) Authorize(r *http.Request) error {
	if !a.Enabled() {
		return nil
	}

	header := r.Header.Get("Authorization")
	credential, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || credential == "" {
		return errors.Wrap(ErrUnauthorized, "missing bearer credential")
	}

	if len(a.jwtSecret) > 0 {
		return a.verifyJWT(credential)
	}

	if subtle.ConstantTimeCompare([]byte(credential), []byte(a.apiToken)) != 1 {
		return errors.Wrap(ErrUnauthorized, "invalid API token")
	}
	return nil
}

func (a *Authenticator) verifyJWT(credential string) error {
	token, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return errors.Wrap(ErrUnauthorized, err.Error())
	}
	if !token.Valid {
		return errors.Wrap(ErrUnauthorized, "invalid token")
	}
	return nil
}
