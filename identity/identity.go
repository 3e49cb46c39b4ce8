// Package identity models the caller-identity sum type attributed to every
// request by the identity middleware stage.
package identity

// Caller is the closed set of caller identities a request can carry. The
// spec's "anonymous | service-principal | user | api-key" sum type is
// rendered as a small interface with a marker method rather than a Rust-style
// enum, since Go has no tagged unions.
type Caller interface {
	callerKind() string
}

// Anonymous is attributed when no identity source yielded a caller.
type Anonymous struct{}

func (Anonymous) callerKind() string { return "anonymous" }

// ServicePrincipal is attributed from an mTLS peer certificate.
type ServicePrincipal struct {
	Namespace string
	ID        string
}

func (ServicePrincipal) callerKind() string { return "service-principal" }

// User is attributed from a validated bearer token.
type User struct {
	ID     string
	Claims map[string]any
	Roles  []string
}

func (User) callerKind() string { return "user" }

// APIKey is attributed from an API-key header.
type APIKey struct {
	ID     string
	Scopes []string
}

func (APIKey) callerKind() string { return "api-key" }

// Kind returns the stable discriminator string for a Caller, used when
// building the authorizer's fingerprint and the caller JSON handed to the
// policy evaluator.
func Kind(c Caller) string {
	if c == nil {
		return "anonymous"
	}
	return c.callerKind()
}

// Key returns a stable string uniquely identifying the caller within its
// kind, used as part of the decision-cache fingerprint.
func Key(c Caller) string {
	switch v := c.(type) {
	case Anonymous:
		return ""
	case ServicePrincipal:
		return v.Namespace + "/" + v.ID
	case User:
		return v.ID
	case APIKey:
		return v.ID
	default:
		return ""
	}
}
