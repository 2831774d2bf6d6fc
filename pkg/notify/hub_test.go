// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func TestHub_BroadcastsToAllListeners(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c1 := dialHub(t, srv)
	defer c1.Close()
	c2 := dialHub(t, srv)
	defer c2.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)

	e := NewEmitter(EmitterConfig{}, hub)
	e.Notify(context.Background(), FileUploaded("a.txt", 3, time.Now(), ""))

	for _, c := range []*websocket.Conn{c1, c2} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := c.ReadMessage()
		require.NoError(t, err)

		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, EventFileUploaded, ev.Type)
		assert.Equal(t, "a.txt", ev.Data.Name)
		assert.Equal(t, int64(3), ev.Data.Size)
	}

	// Closing the emitter closes the hub, which disconnects listeners.
	require.NoError(t, e.Close())
	assert.Equal(t, 0, hub.Clients())

	c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c1.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHub_ForgetsDisconnectedListener(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	c := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	c.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)

	// Publishing with nobody listening is fine.
	assert.NoError(t, hub.Publish(context.Background(), FileDeleted("x"), []byte(`{}`)))
}

func TestHub_NoReplayForLateListener(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	require.NoError(t, hub.Publish(context.Background(), FileDeleted("early"), []byte(`"early"`)))

	c := dialHub(t, srv)
	defer c.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), FileDeleted("late"), []byte(`"late"`)))

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `"late"`, string(msg))
}

func TestHub_RejectsAfterClose(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	require.NoError(t, hub.Close())

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		resp.Body.Close()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err = conn.ReadMessage()
		conn.Close()
	}
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Clients())
}

func TestHub_Name(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "websocket", NewHub().Name())
}
