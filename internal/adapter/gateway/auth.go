package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"venturedesk/internal/domain"
)

// ClientInfo identifies an authenticated API client.
type ClientInfo struct {
	Name string
}

// Authenticator validates incoming requests.
type Authenticator interface {
	Authenticate(r *http.Request) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates bearer tokens against a static list using
// constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// TokenEntry is one configured token.
type TokenEntry struct {
	Token string
	Name  string
}

// NewStaticTokenAuth builds an authenticator from configured tokens.
func NewStaticTokenAuth(entries []TokenEntry) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, len(entries))}
	for i, e := range entries {
		a.entries[i] = authEntry{
			token: []byte(e.Token),
			info:  &ClientInfo{Name: e.Name},
		}
	}
	return a
}

// Authenticate matches the Authorization bearer token against the static
// list. Every configured token is compared so timing does not reveal which
// entry matched.
func (a *StaticTokenAuth) Authenticate(r *http.Request) (*ClientInfo, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, domain.NewDomainError("StaticTokenAuth.Authenticate", domain.ErrGatewayAuth, "missing bearer token")
	}

	tokenBytes := []byte(token)
	var matched *ClientInfo
	for _, e := range a.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			matched = e.info
		}
	}
	if matched == nil {
		return nil, domain.NewDomainError("StaticTokenAuth.Authenticate", domain.ErrGatewayAuth, "unknown token")
	}
	return matched, nil
}

// NoAuth admits every request under a shared anonymous identity. Used when
// auth is not configured, e.g. local single-user deployments.
type NoAuth struct{}

func (NoAuth) Authenticate(r *http.Request) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous"}, nil
}
