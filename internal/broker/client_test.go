package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iksnae/questchat/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method    string
	path      string
	body      map[string]interface{}
	requestID string
}

func newBrokerServer(t *testing.T, status int, response string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.EscapedPath()
		rec.requestID = r.Header.Get(RequestIDHeader)
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestClient_StartChatRoutes(t *testing.T) {
	tests := []struct {
		name          string
		req           internal.StartRequest
		wantPath      string
		wantSessionID interface{}
	}{
		{
			name:     "guild new session",
			req:      internal.StartRequest{Target: internal.Target{GuildID: "g-1"}, Message: "hi"},
			wantPath: "/api/guilds/g-1/chat",
		},
		{
			name:     "guild known session",
			req:      internal.StartRequest{Target: internal.Target{GuildID: "g-1"}, Message: "hi", SessionID: "s-7"},
			wantPath: "/api/guilds/g-1/chat/s-7",
		},
		{
			name:          "quest with session",
			req:           internal.StartRequest{Target: internal.Target{QuestID: "q-2"}, Message: "hi", SessionID: "s-7"},
			wantPath:      "/api/quests/q-2/chat",
			wantSessionID: "s-7",
		},
		{
			name:     "quest wins over guild",
			req:      internal.StartRequest{Target: internal.Target{GuildID: "g-1", QuestID: "q-2"}, Message: "hi"},
			wantPath: "/api/quests/q-2/chat",
		},
		{
			name:     "escaped ids",
			req:      internal.StartRequest{Target: internal.Target{GuildID: "a b"}, Message: "hi"},
			wantPath: "/api/guilds/a%20b/chat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, rec := newBrokerServer(t, http.StatusOK, `{"chatProcessId":"proc-1"}`)
			client := NewClient(srv.URL+"/", time.Second)

			res, err := client.StartChat(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, "proc-1", res.ChatProcessID)
			assert.Equal(t, http.MethodPost, rec.method)
			assert.Equal(t, tt.wantPath, rec.path)
			assert.Equal(t, "hi", rec.body["message"])
			assert.Equal(t, tt.wantSessionID, rec.body["sessionId"])
			assert.NotEmpty(t, rec.requestID)
		})
	}
}

func TestClient_StartChatErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		wantStatus int
		wantMsg    string
	}{
		{name: "server error field", status: http.StatusConflict, response: `{"error":"guild busy"}`, wantStatus: 409, wantMsg: "guild busy"},
		{name: "plain status", status: http.StatusInternalServerError, response: `oops`, wantStatus: 500, wantMsg: "Internal Server Error"},
		{name: "missing handle", status: http.StatusOK, response: `{}`, wantMsg: "no chatProcessId"},
		{name: "bad json", status: http.StatusOK, response: `{"chatProcessId":`, wantStatus: 200, wantMsg: "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newBrokerServer(t, tt.status, tt.response)
			client := NewClient(srv.URL, time.Second)

			_, err := client.StartChat(context.Background(), internal.StartRequest{
				Target:  internal.Target{GuildID: "g"},
				Message: "hello",
			})
			require.Error(t, err)

			var be *internal.BrokerError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, "start", be.Op)
			assert.Equal(t, tt.wantStatus, be.StatusCode)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClient_NoTarget(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second)

	_, err := client.StartChat(context.Background(), internal.StartRequest{Message: "hi"})
	assert.ErrorIs(t, err, internal.ErrNoTarget)

	_, err = client.StopChat(context.Background(), internal.StopRequest{ChatProcessID: "p"})
	assert.ErrorIs(t, err, internal.ErrNoTarget)
}

func TestClient_StopChat(t *testing.T) {
	tests := []struct {
		name     string
		target   internal.Target
		wantPath string
	}{
		{name: "guild", target: internal.Target{GuildID: "g-1"}, wantPath: "/api/guilds/g-1/chat/proc-9/stop"},
		{name: "quest", target: internal.Target{QuestID: "q-1"}, wantPath: "/api/quests/q-1/chat/proc-9/stop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, rec := newBrokerServer(t, http.StatusOK, `{"stopped":true}`)
			client := NewClient(srv.URL, time.Second)

			res, err := client.StopChat(context.Background(), internal.StopRequest{Target: tt.target, ChatProcessID: "proc-9"})
			require.NoError(t, err)
			assert.True(t, res.Stopped)
			assert.Equal(t, tt.wantPath, rec.path)
		})
	}
}

func TestClient_StopChatWithoutHandle(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second)
	_, err := client.StopChat(context.Background(), internal.StopRequest{Target: internal.Target{GuildID: "g"}})
	assert.Error(t, err)
}

func TestClient_ContextCanceled(t *testing.T) {
	srv, _ := newBrokerServer(t, http.StatusOK, `{"chatProcessId":"p"}`)
	client := NewClient(srv.URL, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.StartChat(ctx, internal.StartRequest{Target: internal.Target{GuildID: "g"}, Message: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Ping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "not found still reachable", status: http.StatusNotFound},
		{name: "server error", status: http.StatusBadGateway, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, rec := newBrokerServer(t, tt.status, `{}`)
			err := NewClient(srv.URL, time.Second).Ping(context.Background())
			if tt.wantErr {
				var be *internal.BrokerError
				require.True(t, errors.As(err, &be))
				assert.Equal(t, tt.status, be.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, http.MethodGet, rec.method)
			assert.NotEmpty(t, rec.requestID)
		})
	}
}

func TestClient_PingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.Error(t, NewClient(url, time.Second).Ping(context.Background()))
}
