package httpx

import (
	"net/http"
	"strings"

	"github.com/anonify/anonify/internal/service/suggest"
	"github.com/anonify/anonify/internal/ws"
)

func (r *Router) handleAcceptMessages(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuth(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		accepting, err := r.inbox.Accepting(req.Context(), info.Claims.AccountID)
		if err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		writeOK(w, http.StatusOK, "Message acceptance status retrieved", map[string]any{
			"is_accepting_messages": accepting,
		})
	case http.MethodPost:
		var payload struct {
			AcceptMessages *bool `json:"accept_messages"`
		}
		if err := decodeJSON(w, req, &payload); err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		if payload.AcceptMessages == nil {
			writeError(w, http.StatusBadRequest, "accept_messages is required")
			return
		}
		accepting, err := r.inbox.SetAccepting(req.Context(), info.Claims.AccountID, *payload.AcceptMessages)
		if err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		writeOK(w, http.StatusOK, "Message acceptance status updated successfully", map[string]any{
			"is_accepting_messages": accepting,
		})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleListMessages(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuth(w, req)
	if !ok {
		return
	}
	messages, err := r.inbox.List(req.Context(), info.Claims.AccountID)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeOK(w, http.StatusOK, "Messages retrieved", map[string]any{"messages": messages})
}

func (r *Router) handleDeleteMessage(w http.ResponseWriter, req *http.Request) {
	messageID := strings.TrimPrefix(req.URL.Path, "/messages/")
	if messageID == "" || strings.Contains(messageID, "/") {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuth(w, req)
	if !ok {
		return
	}
	if err := r.inbox.Delete(req.Context(), info.Claims.AccountID, messageID); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeOK(w, http.StatusOK, "Message deleted", nil)
}

func (r *Router) handleSendMessage(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Content  string `json:"content"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	if _, err := r.inbox.Submit(req.Context(), payload.Username, payload.Content); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeOK(w, http.StatusCreated, "Message sent successfully", nil)
}

func (r *Router) handlePublicProfile(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	username := strings.TrimPrefix(req.URL.Path, "/u/")
	if username == "" || strings.Contains(username, "/") {
		r.notFound(w)
		return
	}
	profile, err := r.inbox.PublicProfile(req.Context(), username)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeOK(w, http.StatusOK, "User found", map[string]any{
		"username":           profile.Username,
		"accepting_messages": profile.AcceptingMessages,
	})
}

func (r *Router) handleSuggest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		writeServiceError(w, r.logger, req, suggest.ErrMessageRequired)
		return
	}
	suggestions := r.suggest.Suggest(req.Context(), payload.Message)
	writeOK(w, http.StatusOK, "Suggestions generated", map[string]any{"suggestions": suggestions})
}

func (r *Router) handleInboxWS(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuth(w, req)
	if !ok {
		return
	}
	hub := r.inbox.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Live inbox unavailable")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	accountID := info.Claims.AccountID
	hub.Register(accountID, client)
	go func() {
		defer func() {
			hub.Unregister(accountID, client)
			client.Close()
		}()
		client.Serve()
	}()
}

func (r *Router) handleInboxStream(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuth(w, req)
	if !ok {
		return
	}
	hub := r.inbox.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Live inbox unavailable")
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = http.NewResponseController(w).Flush()

	client := ws.NewSSEClient(w, r.logger)
	accountID := info.Claims.AccountID
	hub.Register(accountID, client)
	defer func() {
		hub.Unregister(accountID, client)
		client.Close()
	}()
	client.Serve(req.Context(), r.heartbeat)
}
