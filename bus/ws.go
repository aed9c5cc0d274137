package bus

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"meetscribe/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
}

// frame is the wire form of one signal. Signals carry no payload; the
// topic is the whole message.
type frame struct {
	Topic string `json:"topic"`
}

// Hub is the websocket channel. External surfaces connect to ServeHTTP;
// a frame published locally reaches every peer, and a frame sent by a
// peer reaches local subscribers and every other peer.
type Hub struct {
	broker *Broker

	mu     sync.Mutex
	peers  map[uuid.UUID]*peer
	closed bool
}

func NewHub() *Hub {
	return &Hub{broker: NewBroker(), peers: make(map[uuid.UUID]*peer)}
}

func (h *Hub) Publish(topic string) {
	h.broadcast(topic, uuid.Nil)
}

func (h *Hub) Subscribe(topic string, fn func()) func() {
	return h.broker.Subscribe(topic, fn)
}

// Peers reports the number of connected surfaces.
func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close disconnects all peers and refuses new ones. Publishing on a
// closed hub still reaches local subscribers and is otherwise a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.peers = make(map[uuid.UUID]*peer)
	h.closed = true
	h.mu.Unlock()
	for _, p := range peers {
		p.shutdown()
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade: %v", err)
		return
	}
	p := &peer{
		id:   uuid.New(),
		hub:  h,
		conn: conn,
		send: make(chan frame, 16),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.peers[p.id] = p
	h.mu.Unlock()
	log.Infof("surface connected: %s", p.id)

	go p.writePump()
	go p.readPump()
}

// broadcast delivers to local subscribers and to every peer except from,
// the peer the signal arrived on.
func (h *Hub) broadcast(topic string, from uuid.UUID) {
	h.broker.Publish(topic)
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for id, p := range h.peers {
		if id != from {
			peers = append(peers, p)
		}
	}
	h.mu.Unlock()
	for _, p := range peers {
		select {
		case p.send <- frame{Topic: topic}:
		default:
			// Slow peer; drop here, another channel covers it.
		}
	}
	log.SyncSignal(topic, "websocket")
}

func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p.id]
	delete(h.peers, p.id)
	h.mu.Unlock()
	if ok {
		log.Infof("surface disconnected: %s", p.id)
	}
}

type peer struct {
	id   uuid.UUID
	hub  *Hub
	conn *websocket.Conn
	send chan frame
	done chan struct{}
	once sync.Once
}

// shutdown asks writePump to send a close frame and exit. The send channel
// is never closed, so a concurrent broadcast can never panic.
func (p *peer) shutdown() {
	p.once.Do(func() { close(p.done) })
}

func (p *peer) readPump() {
	defer func() {
		p.hub.drop(p)
		p.conn.Close()
	}()
	p.conn.SetReadLimit(512)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Topic == "" {
			continue
		}
		p.hub.broadcast(f.Topic, p.id)
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()
	for {
		select {
		case <-p.done:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
