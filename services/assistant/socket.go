// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Chat socket limits.
const (
	socketReadLimit  = 16 << 10
	socketPongWait   = 60 * time.Second
	socketWriteWait  = 10 * time.Second
	maxMessageLen    = 4000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// SocketMessage is one client frame on the chat socket. SessionID
// overrides the session chosen at connect time.
type SocketMessage struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// HandleChatSocket handles GET /v1/assistant/chat/ws.
//
// Description:
//
//	Upgrades to a WebSocket and answers each text frame as a chat request,
//	in order. The session defaults to the session_id query parameter.
//	Malformed frames get an ErrorResponse frame and the connection stays
//	open. Pongs are not read while a frame is being answered, so the read
//	deadline restarts once the answer is ready.
func (h *Handlers) HandleChatSocket(c *gin.Context) {
	logger := slog.With("request_id", requestID(c), "handler", "HandleChatSocket")
	if socketUpgradeRequired(c) {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Info("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	defaultSession := strings.TrimSpace(c.Query("session_id"))
	ctx := c.Request.Context()

	pongWait := h.pongWait
	if pongWait <= 0 {
		pongWait = socketPongWait
	}
	extendRead := func() error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	}

	conn.SetReadLimit(socketReadLimit)
	_ = extendRead()
	conn.SetPongHandler(func(string) error { return extendRead() })

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pongWait * 9 / 10)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("chat socket closed", slog.String("error", err.Error()))
			}
			return
		}
		_ = extendRead()
		if kind != websocket.TextMessage {
			continue
		}

		msg, err := decodeSocketMessage(data)
		if err != nil {
			if werr := writeSocketJSON(conn, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"}); werr != nil {
				return
			}
			continue
		}
		sessionID := msg.SessionID
		if sessionID == "" {
			sessionID = defaultSession
		}
		resp := h.assistant.Ask(ctx, sessionID, msg.Message)
		_ = extendRead()
		logger.Info("chat answered",
			slog.String("session_id", resp.SessionID),
			slog.String("domain", string(resp.Domain)),
			slog.String("intent", resp.Intent),
			slog.Int64("latency_ms", resp.LatencyMS),
		)
		if err := writeSocketJSON(conn, resp); err != nil {
			return
		}
	}
}

func decodeSocketMessage(data []byte) (SocketMessage, error) {
	var msg SocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, errors.New("frame must be a JSON object with a message")
	}
	msg.SessionID = strings.TrimSpace(msg.SessionID)
	switch {
	case strings.TrimSpace(msg.Message) == "":
		return msg, errors.New("message is required")
	case utf8.RuneCountInString(msg.Message) > maxMessageLen:
		return msg, errors.New("message must be at most 4000 characters")
	case utf8.RuneCountInString(msg.SessionID) > 128:
		return msg, errors.New("session_id must be at most 128 characters")
	}
	return msg, nil
}

func writeSocketJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return conn.WriteJSON(v)
}

// socketUpgradeRequired answers plain HTTP requests to the socket path.
func socketUpgradeRequired(c *gin.Context) bool {
	if websocket.IsWebSocketUpgrade(c.Request) {
		return false
	}
	c.JSON(http.StatusUpgradeRequired, ErrorResponse{
		Error: "this endpoint requires a WebSocket upgrade",
		Code:  "UPGRADE_REQUIRED",
	})
	return true
}
