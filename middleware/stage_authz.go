package middleware

import (
	"context"
	"net/http"

	"github.com/archimedes-run/archimedes/archerr"
	"github.com/archimedes-run/archimedes/authz"
)

// AuthorizationStage consults the decision cache (inside Authorizer); on
// deny it short-circuits with 403.
type AuthorizationStage struct {
	Authorizer *authz.Authorizer
	Service    string
}

func (AuthorizationStage) Name() string { return "authorization" }

func (s AuthorizationStage) Process(req *RequestView, next Next) *Response {
	if req.Context.OperationID == "" {
		return next(req)
	}
	ctx := req.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	d := s.Authorizer.Authorize(ctx, authz.AuthorizeInput{
		Caller:      req.Context.Caller,
		OperationID: req.Context.OperationID,
		Method:      req.Method,
		Path:        req.URI,
		RequestID:   req.Context.RequestID,
	})
	req.Context.SetExtension(decisionKey, d)
	if !d.Allowed {
		resp := NewResponse(http.StatusForbidden)
		resp.Body = archerr.Render(http.StatusForbidden, "FORBIDDEN", d.Reason, req.Context.RequestID)
		return resp
	}
	return next(req)
}

var decisionKey = NewExtensionKey("authz.decision")

// Decision retrieves the authorization decision stashed for this request.
func (c *MiddlewareContext) Decision() (authz.Decision, bool) {
	v, ok := c.Extension(decisionKey)
	if !ok {
		return authz.Decision{}, false
	}
	return v.(authz.Decision), true
}
