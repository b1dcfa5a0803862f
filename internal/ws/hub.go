package ws

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages adoption stream subscriptions by deployment key. All state
// lives on the run goroutine; the exported methods only pass messages.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	keysReq   chan chan []string
	done      chan struct{}
}

type message struct {
	deploymentKey string
	payload       []byte
}

type subscription struct {
	deploymentKey string
	client        Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		keysReq:   make(chan chan []string),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.deploymentKey]; !ok {
				h.clients[sub.deploymentKey] = make(map[Subscriber]struct{})
			}
			h.clients[sub.deploymentKey][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.deploymentKey]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.deploymentKey)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.deploymentKey]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.deploymentKey)
				}
			}
		case reply := <-h.keysReq:
			keys := make([]string, 0, len(h.clients))
			for key := range h.clients {
				keys = append(keys, key)
			}
			reply <- keys
		case <-h.done:
			for _, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
			}
			h.clients = nil
			return
		}
	}
}

// Register adds a client to a deployment key stream.
func (h *Hub) Register(deploymentKey string, client Subscriber) {
	h.register <- subscription{deploymentKey: deploymentKey, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(deploymentKey string, client Subscriber) {
	h.unreg <- subscription{deploymentKey: deploymentKey, client: client}
}

// Broadcast sends payload to all subscribers of a deployment key.
func (h *Hub) Broadcast(deploymentKey string, payload []byte) {
	h.broadcast <- message{deploymentKey: deploymentKey, payload: payload}
}

// Keys lists deployment keys that currently have subscribers.
func (h *Hub) Keys() []string {
	reply := make(chan []string, 1)
	h.keysReq <- reply
	return <-reply
}

// Stop closes every subscriber and ends the run goroutine. The hub must not
// be used afterwards.
func (h *Hub) Stop() {
	close(h.done)
}
