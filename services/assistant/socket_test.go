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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/projectassist/services/assistant/clients/jira"
)

func dialSocket(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/assistant/chat/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestHandleChatSocket_AnswersFramesInOrder(t *testing.T) {
	tr := &fakeTracker{searchFn: func(string) (*jira.SearchResult, error) {
		return results("PROJ-1", "PROJ-2"), nil
	}}
	a := newAssistant(t, tr, nil)
	server := httptest.NewServer(setupRouter(t, a, nil))
	defer server.Close()

	conn := dialSocket(t, server, "?session_id=ws-1")

	require.NoError(t, conn.WriteJSON(SocketMessage{Message: "show open tasks"}))
	var first Response
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "ws-1", first.SessionID)
	assert.Equal(t, 2, first.Results)

	require.NoError(t, conn.WriteJSON(SocketMessage{SessionID: "other", Message: "hello"}))
	var second Response
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "other", second.SessionID)

	assert.Equal(t, []string{"show open tasks"}, a.Store().GetOrCreate("ws-1").Queries)
}

func TestHandleChatSocket_InvalidFrameKeepsConnection(t *testing.T) {
	tr := &fakeTracker{searchFn: func(string) (*jira.SearchResult, error) {
		return results("PROJ-1"), nil
	}}
	server := httptest.NewServer(setupRouter(t, newAssistant(t, tr, nil), nil))
	defer server.Close()

	conn := dialSocket(t, server, "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var errResp ErrorResponse
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, "INVALID_REQUEST", errResp.Code)

	require.NoError(t, conn.WriteJSON(SocketMessage{Message: "  "}))
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, "message is required", errResp.Error)

	require.NoError(t, conn.WriteJSON(SocketMessage{Message: "show open tasks"}))
	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, 1, resp.Results)
}

func TestHandleChatSocket_SlowAnswerOutlastsPongWait(t *testing.T) {
	tr := &fakeTracker{searchFn: func(string) (*jira.SearchResult, error) {
		time.Sleep(600 * time.Millisecond)
		return results("PROJ-1"), nil
	}}
	h := NewHandlers(newAssistant(t, tr, nil), nil)
	h.pongWait = 200 * time.Millisecond

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	RegisterRoutes(router.Group("/v1"), h)
	server := httptest.NewServer(router)
	defer server.Close()

	conn := dialSocket(t, server, "?session_id=slow")

	for _, msg := range []string{"show open tasks", "show bugs"} {
		require.NoError(t, conn.WriteJSON(SocketMessage{Message: msg}))
		var resp Response
		require.NoError(t, conn.ReadJSON(&resp), msg)
		assert.Equal(t, 1, resp.Results, msg)
	}
}

func TestHandleChatSocket_PlainHTTP(t *testing.T) {
	router := setupRouter(t, newAssistant(t, &fakeTracker{}, nil), nil)

	w := doJSON(t, router, http.MethodGet, "/v1/assistant/chat/ws", nil)

	assert.Equal(t, http.StatusUpgradeRequired, w.Code)
	assert.Contains(t, w.Body.String(), "UPGRADE_REQUIRED")
}

func TestDecodeSocketMessage(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr string
	}{
		{"valid", `{"message":"hi"}`, ""},
		{"not an object", `[1]`, "JSON object"},
		{"blank", `{"message":" "}`, "required"},
		{"too long", `{"message":"` + strings.Repeat("a", 4001) + `"}`, "4000"},
		{"long session", `{"session_id":"` + strings.Repeat("s", 129) + `","message":"hi"}`, "session_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeSocketMessage([]byte(tt.frame))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
