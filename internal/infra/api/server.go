package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/infra/logging"
	"agentic-workflow/internal/usecase"
)

const (
	maxBodyBytes      = 1 << 20
	streamKeepAlive   = 15 * time.Second
	defaultReqTimeout = 30 * time.Second
)

// Server exposes WorkflowUseCase over HTTP.
type Server struct {
	uc         usecase.WorkflowUseCase
	auth       *AuthManager
	reqTimeout time.Duration
	log        *zerolog.Logger
}

func NewServer(uc usecase.WorkflowUseCase, auth *AuthManager, reqTimeout time.Duration, logger *zerolog.Logger) *Server {
	if reqTimeout <= 0 {
		reqTimeout = defaultReqTimeout
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{uc: uc, auth: auth, reqTimeout: reqTimeout, log: &l}
}

// Routes builds the router. The event stream is exempt from the request timeout.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Authenticate)
		r.Get("/jobs/stream", s.streamJobs)

		r.Group(func(r chi.Router) {
			r.Use(Timeout(s.reqTimeout))
			r.Post("/workflows", s.triggerWorkflow)
			r.Post("/workflows/plan", s.planWorkflow)
			r.Get("/jobs", s.listJobs)
			r.Get("/jobs/{id}", s.getJob)
			r.Get("/jobs/{id}/document", s.getDocument)
		})
	})
	return r
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func (s *Server) triggerWorkflow(w http.ResponseWriter, r *http.Request) {
	var req usecase.TriggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.uc.TriggerWorkflow(r.Context(), ownerFrom(r.Context()), req)
	if err != nil {
		s.logFailure(r, err, "trigger workflow")
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

type planRequest struct {
	Message string `json:"message"`
}

func (s *Server) planWorkflow(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, fmt.Errorf("%w: message is required", domain.ErrInvalidArgument))
		return
	}
	res, err := s.uc.Plan(r.Context(), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	res, err := s.uc.ListJobs(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.logFailure(r, err, "list jobs")
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithJobID(r.Context(), id)
	res, err := s.uc.GetJobStatus(ctx, ownerFrom(ctx), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithJobID(r.Context(), id)
	doc, err := s.uc.GetDocument(ctx, ownerFrom(ctx), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(doc.Body))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// streamJobs pushes the owner's job list as Server-Sent Events, once on
// connect and again after every change.
func (s *Server) streamJobs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, errors.New("streaming unsupported"))
		return
	}
	ctx := r.Context()
	updates, err := s.uc.Subscribe(ctx, ownerFrom(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case jobs, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, "jobs", usecase.NewJobList(jobs)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

func (s *Server) logFailure(r *http.Request, err error, what string) {
	if statusOf(err) < http.StatusInternalServerError {
		return
	}
	l := logging.With(r.Context(), s.log)
	l.Error().Err(err).Msg(what + " failed")
}

// ListenAndServe runs handler on addr until ctx ends, then drains in-flight
// requests for up to grace.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, readTimeout, grace time.Duration, logger *zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		logger.Info().Msg("http server shutting down")
		return srv.Shutdown(sctx)
	}
}
