package server

import (
	"net/http"
	"sync"
	"time"

	"EchoVault/logger"
	"EchoVault/model"

	"github.com/gorilla/websocket"
)

// EventType tags a library event pushed to connected clients.
type EventType string

const (
	EventSongAdded         EventType = "song_added"
	EventSongRemoved       EventType = "song_removed"
	EventDuplicateRejected EventType = "duplicate_rejected"
)

// Event is the wire format for library notifications.
type Event struct {
	Type      EventType   `json:"type"`
	Song      *model.Song `json:"song,omitempty"`
	SongID    int64       `json:"songId,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// eventClient is one connected websocket subscriber.
type eventClient struct {
	conn *websocket.Conn
	send chan Event
}

// EventHub fans library events out to websocket subscribers. Slow clients
// are dropped rather than allowed to block the rest.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*eventClient]struct{}
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*eventClient]struct{})}
}

// BroadcastSongAdded notifies subscribers about a new library entry.
func (h *EventHub) BroadcastSongAdded(song *model.Song) {
	h.broadcast(Event{
		Type:      EventSongAdded,
		Song:      song,
		Timestamp: time.Now().UnixMilli(),
	})
}

// BroadcastDuplicateRejected notifies subscribers an upload was turned away
// because the library already holds the song.
func (h *EventHub) BroadcastDuplicateRejected(existing *model.Song) {
	h.broadcast(Event{
		Type:      EventDuplicateRejected,
		Song:      existing,
		Timestamp: time.Now().UnixMilli(),
	})
}

// BroadcastSongRemoved notifies subscribers a song left the library.
func (h *EventHub) BroadcastSongRemoved(songID int64) {
	h.broadcast(Event{
		Type:      EventSongRemoved,
		SongID:    songID,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *EventHub) broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Buffer full; the client is too slow to keep.
			go h.remove(client)
		}
	}
}

func (h *EventHub) add(client *eventClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	logger.Debug("event subscriber connected", logger.Int("subscribers", count))
}

func (h *EventHub) remove(client *eventClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	logger.Debug("event subscriber disconnected", logger.Int("subscribers", count))
}

// Close disconnects all subscribers.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// ServeWS upgrades the request and streams library events until the client
// disconnects.
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &eventClient{
		conn: conn,
		send: make(chan Event, sendBufferSize),
	}
	h.add(client)

	go h.writePump(client)
	go h.readPump(client)
}

// writePump pushes events and pings to one client.
func (h *EventHub) writePump(client *eventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the stream is one-way. It exists to
// surface disconnects and answer pings.
func (h *EventHub) readPump(client *eventClient) {
	defer func() {
		h.remove(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// SubscriberCount reports the number of connected clients.
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
