// Package ws fans inbox events out to live websocket and SSE subscribers.
package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// outboxSize bounds the events queued for one subscriber. A subscriber whose
// outbox is full is disconnected.
const outboxSize = 16

// Hub manages stream subscriptions by account ID. A single goroutine owns the
// subscriber map and never writes to a subscriber itself; each subscriber has
// its own outbox drained by a writer goroutine.
type Hub struct {
	clients   map[string]map[Subscriber]*peer
	register  chan subscription
	unreg     chan subscription
	broadcast chan event
	count     chan countRequest
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type event struct {
	accountID string
	payload   []byte
}

type peer struct {
	client Subscriber
	outbox chan []byte
}

type subscription struct {
	accountID string
	client    Subscriber
}

type countRequest struct {
	accountID string
	reply     chan int
}

// NewHub creates a running Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]*peer),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan event, 64),
		count:     make(chan countRequest),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.accountID]; !ok {
				h.clients[sub.accountID] = make(map[Subscriber]*peer)
			}
			if _, ok := h.clients[sub.accountID][sub.client]; ok {
				continue
			}
			p := &peer{client: sub.client, outbox: make(chan []byte, outboxSize)}
			h.clients[sub.accountID][sub.client] = p
			go h.drain(sub.accountID, p)
		case sub := <-h.unreg:
			h.remove(sub.accountID, sub.client)
		case ev := <-h.broadcast:
			for c, p := range h.clients[ev.accountID] {
				select {
				case p.outbox <- ev.payload:
				default:
					c.Close()
					h.remove(ev.accountID, c)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.accountID])
		case <-h.stop:
			for _, clients := range h.clients {
				for c, p := range clients {
					close(p.outbox)
					c.Close()
				}
			}
			h.clients = nil
			return
		}
	}
}

// drain writes queued events to one subscriber until its outbox is closed or
// a write fails.
func (h *Hub) drain(accountID string, p *peer) {
	for payload := range p.outbox {
		if err := p.client.Send(payload); err != nil {
			p.client.Close()
			h.Unregister(accountID, p.client)
			return
		}
	}
}

func (h *Hub) remove(accountID string, client Subscriber) {
	clients, ok := h.clients[accountID]
	if !ok {
		return
	}
	p, ok := clients[client]
	if !ok {
		return
	}
	close(p.outbox)
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, accountID)
	}
}

// Register adds a client to an account's stream.
func (h *Hub) Register(accountID string, client Subscriber) {
	select {
	case h.register <- subscription{accountID: accountID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(accountID string, client Subscriber) {
	select {
	case h.unreg <- subscription{accountID: accountID, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every subscriber of accountID. It never
// blocks: when the hub is backed up the event is dropped and false returned.
func (h *Hub) Broadcast(accountID string, payload []byte) bool {
	select {
	case h.broadcast <- event{accountID: accountID, payload: payload}:
		return true
	case <-h.done:
		return false
	default:
		return false
	}
}

// Subscribers reports how many clients follow accountID.
func (h *Hub) Subscribers(accountID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{accountID: accountID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close disconnects every subscriber and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.stop) })
	<-h.done
}
