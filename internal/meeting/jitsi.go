package meeting

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"liveclass/internal/classes"
)

// Jitsi builds public meeting links locally. Every call yields a fresh room.
type Jitsi struct {
	BaseURL string
	Prefix  string
}

var _ classes.RoomProvider = (*Jitsi)(nil)

// NewJitsi creates a provider for baseURL, e.g. https://meet.jit.si.
func NewJitsi(baseURL string) *Jitsi {
	return &Jitsi{BaseURL: strings.TrimRight(baseURL, "/"), Prefix: "liveclass-"}
}

// CreateRoom returns a room named after a random uuid.
func (j *Jitsi) CreateRoom(_ context.Context, _ classes.Session) (classes.Room, error) {
	id := j.Prefix + uuid.NewString()
	return classes.Room{ID: id, Link: j.BaseURL + "/" + id}, nil
}
