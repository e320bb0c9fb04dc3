package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"ChatBridge/core"
	"ChatBridge/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

const (
	maxBodySize = 1 << 20
	// time left to write a reply once it is ready
	replyWriteTimeout = 10 * time.Second

	badRequestMessage = "No user message or user ID provided"
	internalMessage   = "Internal server error"
)

type ctxKey int

const requestIdKey ctxKey = iota

type chatRequest struct {
	UserMessage string `json:"userMessage"`
	UserId      string `json:"userId"`
}

type chatResponse struct {
	BotResponse string `json:"botResponse"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	corsHeaders = []string{"Content-Type", "Authorization"}
)

type Server struct {
	conf    *core.Config
	chat    core.ChatService
	router  *chi.Mux
	srv     *http.Server
	origins map[string]bool
	log     *slog.Logger
}

func NewServer(conf *core.Config, chat core.ChatService, log *slog.Logger) *Server {
	s := &Server{
		conf:   conf,
		chat:   chat,
		router:  chi.NewRouter(),
		origins: make(map[string]bool, len(conf.AllowedOrigins)),
		log:     log.With(sl.Module("http")),
	}
	for _, origin := range conf.AllowedOrigins {
		s.origins[strings.ToLower(origin)] = true
	}
	s.routes()
	s.srv = &http.Server{
		Addr:              net.JoinHostPort(conf.Listen.BindIP, conf.Listen.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      conf.Listen.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestId)
	s.router.Use(s.recoverer)
	s.router.Use(s.logRequest)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:     s.conf.AllowedOrigins,
		AllowedMethods:     corsMethods,
		AllowedHeaders:     corsHeaders,
		ExposedHeaders:     []string{"X-Request-Id"},
		OptionsPassthrough: true,
		MaxAge:             300,
	}))

	s.router.Options("/*", s.handlePreflight)
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/chat", s.handleChat)
}

func (s *Server) Router() http.Handler { return s.router }

// Start serves until ctx is cancelled and then shuts the listener down,
// letting requests in flight finish
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.With(slog.String("addr", s.srv.Addr)).Info("listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeoutCause(context.WithoutCancel(ctx), 10*time.Second, errors.New("http server shutdown timeout"))
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("graceful shutdown", sl.Err(err))
		return s.srv.Close()
	}
	s.log.Info("http server stopped")
	return nil
}

// handlePreflight answers every OPTIONS request with 200. An allowed origin
// always gets the full method and header lists, whatever it asked for.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && s.origins[strings.ToLower(origin)] {
		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ", "))
		h.Set("Access-Control-Allow-Headers", strings.Join(corsHeaders, ", "))
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(sl.RequestId(requestIdFrom(r.Context())))

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		log.Debug("decoding request", sl.Err(err))
		writeError(w, http.StatusBadRequest, badRequestMessage)
		return
	}

	// the caller going away must not abort the upstream calls
	ctx := context.WithoutCancel(r.Context())
	start := time.Now()
	reply, err := s.chat.Respond(ctx, req.UserId, req.UserMessage)

	// waiting for earlier requests of the same user may have used up the
	// server write timeout
	if elapsed := time.Since(start); s.conf.Listen.WriteTimeout > 0 && elapsed > s.conf.Listen.WriteTimeout/2 {
		log.With(sl.User(req.UserId), slog.Duration("elapsed", elapsed)).Warn("slow reply, extending write deadline")
	}
	if dlErr := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(replyWriteTimeout)); dlErr != nil && !errors.Is(dlErr, http.ErrNotSupported) {
		log.Warn("extending write deadline", sl.Err(dlErr))
	}

	if err != nil {
		if errors.Is(err, core.ErrBadRequest) {
			writeError(w, http.StatusBadRequest, badRequestMessage)
			return
		}
		log.With(sl.User(req.UserId)).Error("processing chat", sl.Err(err))
		writeError(w, http.StatusInternalServerError, internalMessage)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{BotResponse: reply.Text})
}

func (s *Server) requestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIdKey, id)))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.With(
					sl.RequestId(requestIdFrom(r.Context())),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				).Error("handler panic")
				writeError(w, http.StatusInternalServerError, internalMessage)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.With(
			sl.RequestId(requestIdFrom(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		).Debug("request")
	})
}

func requestIdFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
