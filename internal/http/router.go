package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/anonify/anonify/internal/service/auth"
	"github.com/anonify/anonify/internal/service/inbox"
	"github.com/anonify/anonify/internal/service/suggest"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux            *http.ServeMux
	logger         *slog.Logger
	auth           auth.Service
	inbox          inbox.Service
	suggest        suggest.Service
	upgrader       websocket.Upgrader
	limiter        RateLimiter
	metrics        *Metrics
	storeHealth    func(context.Context) error
	stateCookieKey string
	secureCookies  bool
	heartbeat      time.Duration
}

// Options carries the router's collaborators.
type Options struct {
	Logger  *slog.Logger
	Auth    auth.Service
	Inbox   inbox.Service
	Suggest suggest.Service
	// Limiter defaults to an in-memory limiter.
	Limiter RateLimiter
	// Metrics may be nil, in which case nothing is recorded.
	Metrics        *Metrics
	StoreHealth    func(context.Context) error
	StateCookieKey string
	SecureCookies  bool
	// StreamHeartbeat is the SSE keep-alive interval.
	StreamHeartbeat time.Duration
}

const (
	healthCheckTimeout = 2 * time.Second
	defaultHeartbeat   = 25 * time.Second
)

var (
	rateSignUp        = rateRule{route: "/auth/sign-up", limit: 5, window: time.Minute, scope: scopeIP}
	rateVerify        = rateRule{route: "/auth/verify", limit: 10, window: time.Minute, scope: scopeIP}
	rateResend        = rateRule{route: "/auth/resend-code", limit: 3, window: time.Minute, scope: scopeIP}
	rateUsernameCheck = rateRule{route: "/auth/username-available", limit: 60, window: time.Minute, scope: scopeIP}
	rateSignIn        = rateRule{route: "/auth/sign-in", limit: 12, window: time.Minute, scope: scopeIP}
	rateOAuth         = rateRule{route: "/auth/oauth", limit: 30, window: time.Minute, scope: scopeIP}
	rateAccepting     = rateRule{route: "/accept-messages", limit: 60, window: time.Minute, scope: scopeAccount}
	rateListMessages  = rateRule{route: "/messages", limit: 120, window: time.Minute, scope: scopeAccount}
	rateDeleteMessage = rateRule{route: "/messages/{id}", limit: 60, window: time.Minute, scope: scopeAccount}
	rateInboxSocket   = rateRule{route: "/ws/inbox", limit: 30, window: 30 * time.Second, scope: scopeAccount}
	rateInboxStream   = rateRule{route: "/inbox/stream", limit: 30, window: 30 * time.Second, scope: scopeAccount}
	rateProfile       = rateRule{route: "/u/{username}", limit: 60, window: time.Minute, scope: scopeIP}
	rateSuggest       = rateRule{route: "/suggest-messages", limit: 20, window: time.Minute, scope: scopeIP}
)

// NewRouter assembles routes with dependencies.
func NewRouter(opts Options) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		logger:  opts.Logger,
		auth:    opts.Auth,
		inbox:   opts.Inbox,
		suggest: opts.Suggest,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:        opts.Limiter,
		metrics:        opts.Metrics,
		storeHealth:    opts.StoreHealth,
		stateCookieKey: opts.StateCookieKey,
		secureCookies:  opts.SecureCookies,
		heartbeat:      opts.StreamHeartbeat,
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", r.metrics.Handler())

	r.mux.HandleFunc("/auth/sign-up", r.audit(rateSignUp.route, r.limited(rateSignUp, r.handleSignUp)))
	r.mux.HandleFunc("/auth/verify", r.audit(rateVerify.route, r.limited(rateVerify, r.handleVerify)))
	r.mux.HandleFunc("/auth/resend-code", r.audit(rateResend.route, r.limited(rateResend, r.handleResendCode)))
	r.mux.HandleFunc("/auth/username-available", r.audit(rateUsernameCheck.route, r.limited(rateUsernameCheck, r.handleUsernameAvailable)))
	r.mux.HandleFunc("/auth/sign-in", r.audit(rateSignIn.route, r.limited(rateSignIn, r.handleSignIn)))
	r.mux.HandleFunc("/auth/sign-out", r.audit("/auth/sign-out", r.requireAuth(r.handleSignOut)))
	r.mux.HandleFunc("/auth/oauth/", r.audit(rateOAuth.route, r.limited(rateOAuth, r.handleOAuth)))

	r.mux.HandleFunc("/accept-messages", r.audit(rateAccepting.route, r.ownerLimited(rateAccepting, r.handleAcceptMessages)))
	r.mux.HandleFunc("/messages", r.audit(rateListMessages.route, r.ownerLimited(rateListMessages, r.handleListMessages)))
	r.mux.HandleFunc("/messages/", r.audit(rateDeleteMessage.route, r.ownerLimited(rateDeleteMessage, r.handleDeleteMessage)))
	r.mux.HandleFunc("/account", r.audit("/account", r.requireAuth(r.handleDeleteAccount)))
	r.mux.HandleFunc("/ws/inbox", r.audit(rateInboxSocket.route, r.requireStreamAuth(r.limited(rateInboxSocket, r.handleInboxWS))))
	r.mux.HandleFunc("/inbox/stream", r.audit(rateInboxStream.route, r.requireStreamAuth(r.limited(rateInboxStream, r.handleInboxStream))))

	r.mux.HandleFunc("/send-message", r.auditAnonymous("/send-message", r.handleSendMessage))
	r.mux.HandleFunc("/u/", r.audit(rateProfile.route, r.limited(rateProfile, r.handlePublicProfile)))
	r.mux.HandleFunc("/suggest-messages", r.audit(rateSuggest.route, r.limited(rateSuggest, r.handleSuggest)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.storeHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.storeHealth(ctx); err != nil {
			status = "degraded"
			components["store"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// audit logs one http_request line per request and records request metrics.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.auditWith(route, true, next)
}

// auditAnonymous is audit without the client address, for routes whose
// callers must stay untraceable.
func (r *Router) auditAnonymous(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.auditWith(route, false, next)
}

func (r *Router) auditWith(route string, withIP bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.metrics.recordRequest(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if withIP {
			if ip := clientIP(req); ip != "" {
				fields = append(fields, "ip", ip)
			}
			if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
				fields = append(fields, "request_id", reqID)
			}
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "owner"
			fields = append(fields, "account_id", info.Claims.AccountID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "Not found")
}
