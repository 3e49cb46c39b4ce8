package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/archimedes-run/archimedes/inject"
	"github.com/archimedes-run/archimedes/middleware"
	"github.com/archimedes-run/archimedes/resolver"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server bridges net/http to the Archimedes pipeline. Chi is kept at the
// outer serving edge (panic recovery, real-ip, health/ready) per the
// teacher's router.NewRouter composition, while contract routing and
// resolution are owned by resolver.Resolver / router.Tree.
type Server struct {
	httpServer *http.Server
	lifecycle  *Lifecycle
	logger     zerolog.Logger
}

// Options configures the bridge.
type Options struct {
	Addr        string
	Resolver    *resolver.Resolver
	Pipeline    *middleware.Pipeline
	Container   *inject.Container
	Lifecycle   *Lifecycle
	Logger      zerolog.Logger
	MaxBodyBytes int64
}

// New builds the outer http.Server: chi handles non-contract concerns
// (panic recovery, real-ip, health/ready endpoints), and every other path is bridged
// into the pipeline via resolver.Resolve + RequestView construction.
func New(opts Options) *Server {
	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)

	mux.Get("/_archimedes/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Get("/_archimedes/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	mux.Mount("/", http.HandlerFunc(bridgeHandler(opts)))

	httpServer := &http.Server{
		Addr:    opts.Addr,
		Handler: mux,
	}

	return &Server{httpServer: httpServer, lifecycle: opts.Lifecycle, logger: opts.Logger}
}

func bridgeHandler(opts Options) http.HandlerFunc {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.RemoteAddr
		var release func()
		if opts.Lifecycle != nil {
			var err error
			release, err = opts.Lifecycle.AcquireConnection(r.Context(), clientID)
			if err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":{"code":"SERVICE_UNAVAILABLE","message":"connection capacity exceeded","request_id":""}}`))
				return
			}
			defer release()
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if int64(len(body)) > maxBody {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_, _ = w.Write([]byte(`{"error":{"code":"PAYLOAD_TOO_LARGE","message":"request body exceeds configured limit","request_id":""}}`))
			return
		}

		res, resolveErr := opts.Resolver.Resolve(r.Method, r.URL.Path)
		ctx := &middleware.MiddlewareContext{StartedAt: time.Now()}
		view := &middleware.RequestView{
			Ctx:       r.Context(),
			Method:    r.Method,
			URI:       r.URL.RequestURI(),
			Header:    r.Header,
			Body:      body,
			Container: opts.Container,
			Context:   ctx,
		}
		if resolveErr == nil {
			ctx.OperationID = res.OperationID
			view.PathParams = res.Params
		} else {
			view.PathParams = map[string]string{}
		}

		resp := opts.Pipeline.Run(view)

		for k, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		w.WriteHeader(resp.Status)
		_, _ = w.Write(resp.Body)
	}
}

// Serve starts the listener and blocks until it closes.
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown closes the listener, then drains in-flight requests until they
// finish or ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
