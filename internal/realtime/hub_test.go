package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func bootstrapHub(t *testing.T) *Hub {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	h := NewHub(logger.Sugar())
	go h.Run()
	t.Cleanup(h.Stop)

	return h
}

// recv reads one event from the client's send channel or fails the test
func recv(t *testing.T, c *Client) Event {
	t.Helper()

	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestNotifyReachesRoomClients(t *testing.T) {
	h := bootstrapHub(t)

	c := NewClient(h, nil, 7, "", h.logger)
	h.Register(c)

	h.Notify("messages", "INSERT", 7)

	ev := recv(t, c)
	require.Equal(t, Event{Table: "messages", Event: "INSERT", RoomID: 7}, ev)
}

func TestNotifyScopedToRoom(t *testing.T) {
	h := bootstrapHub(t)

	inRoom := NewClient(h, nil, 7, "", h.logger)
	otherRoom := NewClient(h, nil, 8, "", h.logger)
	h.Register(inRoom)
	h.Register(otherRoom)

	h.Notify("messages", "INSERT", 7)

	recv(t, inRoom)

	select {
	case data := <-otherRoom.send:
		t.Fatalf("client of another room received event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := bootstrapHub(t)

	c := NewClient(h, nil, 7, "", h.logger)
	h.Register(c)
	h.Unregister(c)

	select {
	case _, ok := <-c.send:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
}

func TestSlowClientDropped(t *testing.T) {
	h := bootstrapHub(t)

	c := NewClient(h, nil, 7, "", h.logger)
	h.Register(c)

	// overflow the send buffer without draining it
	for i := 0; i < cap(c.send)+1; i++ {
		h.Notify("messages", "INSERT", 7)
	}

	// the channel must end up closed once the hub cuts the client loose
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("slow client was not dropped")
		}
	}
}

func TestDropSessionDetachesOnlyThatSession(t *testing.T) {
	h := bootstrapHub(t)

	leaving := NewClient(h, nil, 7, "session-a", h.logger)
	staying := NewClient(h, nil, 7, "session-b", h.logger)
	h.Register(leaving)
	h.Register(staying)

	h.DropSession("session-a")

	select {
	case _, ok := <-leaving.send:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel of the revoked session was not closed")
	}

	// the other session's client stays subscribed
	h.Notify("messages", "INSERT", 7)
	ev := recv(t, staying)
	require.Equal(t, int64(7), ev.RoomID)
}

func TestStopClosesClients(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	h := NewHub(logger.Sugar())
	go h.Run()

	c := NewClient(h, nil, 7, "", h.logger)
	h.Register(c)

	h.Stop()

	select {
	case _, ok := <-c.send:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed on stop")
	}
}

func TestNotifyAfterStopDoesNotBlock(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	h := NewHub(logger.Sugar())
	go h.Run()
	h.Stop()

	done := make(chan struct{})
	go func() {
		h.Notify("messages", "INSERT", 7)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked after Stop")
	}
}
