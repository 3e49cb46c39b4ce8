// Package invoke adapts typed handler signatures to the pipeline's
// bytes-in/bytes-out contract (component H). All three flavours named in
// the spec — native typed handlers, code-generated registrations, and
// foreign handlers via the binding ABI — reduce to the same kernel: run an
// extractor (or extractor tuple), call the handler, serialise the result.
package invoke

import (
	"encoding/json"
	"net/http"

	"github.com/archimedes-run/archimedes/archerr"
	"github.com/archimedes-run/archimedes/extract"
	"github.com/archimedes-run/archimedes/middleware"
)

// Handler is the native typed handler shape: a function of one extracted
// request type returning one typed result.
type Handler[Req, Resp any] func(ctx *middleware.MiddlewareContext, req Req) (Resp, error)

// Invoker wraps a Handler plus its extractor into the pipeline's terminal
// step (the "handler" stage between request-validation and
// response-validation).
type Invoker[Req, Resp any] struct {
	Extract extract.Extractor[Req]
	Handler Handler[Req, Resp]
}

// AsStage renders the invoker into a middleware.Stage sitting at the
// "handler" position of the pipeline.
func (inv Invoker[Req, Resp]) AsStage() middleware.Stage {
	return middleware.StageFunc{
		StageName: "handler",
		Fn: func(req *middleware.RequestView, next middleware.Next) *middleware.Response {
			req.Context.Seal()

			parsed, extractErr := inv.Extract(req)
			if extractErr != nil {
				resp := middleware.NewResponse(extractErr.Status())
				resp.Body = archerr.Render(extractErr.Status(), "", extractErr.Message, req.Context.RequestID)
				return resp
			}

			result, err := inv.Handler(req.Context, parsed)
			if err != nil {
				return handlerErrorResponse(err, req.Context.RequestID)
			}

			body, err := json.Marshal(result)
			if err != nil {
				resp := middleware.NewResponse(http.StatusInternalServerError)
				resp.Body = archerr.Render(http.StatusInternalServerError, "", "failed to serialise handler result", req.Context.RequestID)
				return resp
			}

			resp := middleware.NewResponse(http.StatusOK)
			resp.Header.Set("Content-Type", "application/json; charset=utf-8")
			resp.Body = body
			return resp
		},
	}
}

func handlerErrorResponse(err error, requestID string) *middleware.Response {
	if ae, ok := err.(*archerr.Error); ok {
		resp := middleware.NewResponse(ae.Status())
		resp.Body = archerr.Render(ae.Status(), ae.Code(), ae.Message, requestID)
		return resp
	}
	resp := middleware.NewResponse(http.StatusInternalServerError)
	resp.Body = archerr.Render(http.StatusInternalServerError, "", err.Error(), requestID)
	return resp
}
