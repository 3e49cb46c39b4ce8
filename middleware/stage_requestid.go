package middleware

import (
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-ID"

// RequestIDStage mints or adopts the request id and always echoes it back
// on the response header.
type RequestIDStage struct {
	// TrustIncoming, when true, adopts a client-supplied X-Request-ID that
	// parses as a well-formed UUID instead of minting a fresh one.
	TrustIncoming bool
}

func (RequestIDStage) Name() string { return "request-id" }

func (s RequestIDStage) Process(req *RequestView, next Next) *Response {
	id := ""
	if s.TrustIncoming {
		if incoming := req.Header.Get(headerRequestID); incoming != "" {
			if _, err := uuid.Parse(incoming); err == nil {
				id = incoming
			}
		}
	}
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	req.Context.RequestID = id

	resp := next(req)
	if resp.Header == nil {
		resp.Header = make(map[string][]string)
	}
	resp.Header.Set(headerRequestID, id)
	return resp
}
