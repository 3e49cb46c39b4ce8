package middleware

import (
	"crypto/tls"
	"strings"

	"github.com/archimedes-run/archimedes/identity"
	"github.com/golang-jwt/jwt/v5"
)

// IdentitySource extracts a caller identity from one channel. No single
// source is required; absence yields Anonymous.
type IdentitySource interface {
	Identify(req *RequestView, tlsState *tls.ConnectionState) (identity.Caller, bool)
}

// IdentityStage runs the configured sources in order, taking the first hit.
// Grounded in the teacher's middleware/auth.go header parsing, generalized
// to mTLS/bearer/API-key sources per the spec.
type IdentityStage struct {
	Sources  []IdentitySource
	TLSState *tls.ConnectionState
}

func (IdentityStage) Name() string { return "identity" }

func (s IdentityStage) Process(req *RequestView, next Next) *Response {
	caller := identity.Caller(identity.Anonymous{})
	for _, src := range s.Sources {
		if c, ok := src.Identify(req, s.TLSState); ok {
			caller = c
			break
		}
	}
	req.Context.Caller = caller
	return next(req)
}

// MTLSSource attributes a ServicePrincipal from the peer certificate.
type MTLSSource struct{ Namespace string }

func (m MTLSSource) Identify(_ *RequestView, tlsState *tls.ConnectionState) (identity.Caller, bool) {
	if tlsState == nil || len(tlsState.PeerCertificates) == 0 {
		return nil, false
	}
	cert := tlsState.PeerCertificates[0]
	return identity.ServicePrincipal{Namespace: m.Namespace, ID: cert.Subject.CommonName}, true
}

// BearerSource attributes a User from a validated JWT bearer token.
type BearerSource struct {
	Keyfunc jwt.Keyfunc
}

func (b BearerSource) Identify(req *RequestView, _ *tls.ConnectionState) (identity.Caller, bool) {
	authHeader := req.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return nil, false
	}
	raw := authHeader[len("bearer "):]

	token, err := jwt.Parse(raw, b.Keyfunc)
	if err != nil || !token.Valid {
		return nil, false
	}
	claims, _ := token.Claims.(jwt.MapClaims)
	sub, _ := claims["sub"].(string)
	var roles []string
	if rs, ok := claims["roles"].([]any); ok {
		for _, r := range rs {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	return identity.User{ID: sub, Claims: claims, Roles: roles}, true
}

// APIKeySource attributes an APIKey identity from a configured header.
type APIKeySource struct {
	HeaderName string
	Lookup     func(key string) (scopes []string, ok bool)
}

func (a APIKeySource) Identify(req *RequestView, _ *tls.ConnectionState) (identity.Caller, bool) {
	header := a.HeaderName
	if header == "" {
		header = "X-API-Key"
	}
	key := req.Header.Get(header)
	if key == "" {
		return nil, false
	}
	if a.Lookup == nil {
		return identity.APIKey{ID: key}, true
	}
	scopes, ok := a.Lookup(key)
	if !ok {
		return nil, false
	}
	return identity.APIKey{ID: key, Scopes: scopes}, true
}
