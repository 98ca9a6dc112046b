package meeting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveclass/internal/classes"
)

func TestJitsiRoomsAreUnique(t *testing.T) {
	p := NewJitsi("https://meet.jit.si/")
	a, err := p.CreateRoom(context.Background(), classes.Session{ID: "c1"})
	require.NoError(t, err)
	b, err := p.CreateRoom(context.Background(), classes.Session{ID: "c1"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, strings.HasPrefix(a.ID, "liveclass-"))
	assert.Equal(t, "https://meet.jit.si/"+a.ID, a.Link)
}

func TestClientCreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var in createRoomRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "c1", in.ClassID)
		assert.Equal(t, 60, in.Duration)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"meeting_id": "m-1",
			"join_url":   "https://rooms.test/m-1",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	room, err := c.CreateRoom(context.Background(), classes.Session{
		ID: "c1", Title: "Go", Program: "24-session", Duration: 60, StartTime: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, classes.Room{ID: "m-1", Link: "https://rooms.test/m-1"}, room)
}

func TestClientCreateRoomServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, false).CreateRoom(context.Background(), classes.Session{ID: "c1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no capacity")
}

func TestClientSkipAndHealth(t *testing.T) {
	c := New("http://127.0.0.1:1", true)
	room, err := c.CreateRoom(context.Background(), classes.Session{ID: "c1"})
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.NoError(t, c.Health(context.Background()))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	assert.NoError(t, New(srv.URL, false).Health(context.Background()))
}
