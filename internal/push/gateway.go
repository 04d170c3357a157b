package push

import (
	"encoding/json"
	"net/http"
	"sync"

	"quant-backtester/internal/infrastructure"
	"quant-backtester/internal/worker"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subscriber is the part of nats.JetStreamContext the gateway uses.
type Subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// PushGateway relays optimization progress to websocket clients. A client
// subscribes with {"action":"subscribe","id":"<request id>"} and receives every
// progress message published for that request.
type PushGateway struct {
	logger         *zap.Logger
	js             Subscriber
	progressPrefix string
	clients        map[*Client]bool
	subscriptions  map[string]map[*Client]bool
	natsSubs       map[string]*nats.Subscription
	mu             sync.RWMutex
}

func NewPushGateway(js Subscriber, progressPrefix string, logger *zap.Logger) *PushGateway {
	return &PushGateway{
		logger:         logger,
		js:             js,
		progressPrefix: progressPrefix,
		clients:        make(map[*Client]bool),
		subscriptions:  make(map[string]map[*Client]bool),
		natsSubs:       make(map[string]*nats.Subscription),
	}
}

func (g *PushGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("failed to upgrade websocket", zap.Error(err))
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}

	g.mu.Lock()
	g.clients[client] = true
	g.mu.Unlock()
	infrastructure.WSConnections.Inc()

	go g.writePump(client)
	g.readPump(client)
}

func (g *PushGateway) readPump(c *Client) {
	defer func() {
		g.mu.Lock()
		delete(g.clients, c)
		for topic := range g.subscriptions {
			g.removeLocked(topic, c)
		}
		g.mu.Unlock()
		close(c.send)
		infrastructure.WSConnections.Dec()
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req struct {
			Action string `json:"action"` // "subscribe", "unsubscribe"
			ID     string `json:"id"`
		}
		if err := json.Unmarshal(message, &req); err != nil || req.ID == "" {
			continue
		}
		topic := worker.ProgressTopic(g.progressPrefix, req.ID)

		g.mu.Lock()
		switch req.Action {
		case "subscribe":
			if g.subscriptions[topic] == nil {
				if err := g.subscribeToNATS(topic); err != nil {
					g.logger.Error("failed to subscribe to NATS", zap.String("topic", topic), zap.Error(err))
					g.mu.Unlock()
					continue
				}
				g.subscriptions[topic] = make(map[*Client]bool)
			}
			g.subscriptions[topic][c] = true
			g.logger.Info("client subscribed to progress", zap.String("topic", topic))
		case "unsubscribe":
			g.removeLocked(topic, c)
		}
		g.mu.Unlock()
	}
}

// removeLocked drops c from topic and releases the NATS subscription once
// nobody listens. g.mu must be held.
func (g *PushGateway) removeLocked(topic string, c *Client) {
	clients, ok := g.subscriptions[topic]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) > 0 {
		return
	}
	if sub, ok := g.natsSubs[topic]; ok {
		if sub != nil {
			sub.Unsubscribe()
		}
		delete(g.natsSubs, topic)
		g.logger.Info("unsubscribed from NATS as no clients left", zap.String("topic", topic))
	}
	delete(g.subscriptions, topic)
}

func (g *PushGateway) writePump(c *Client) {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (g *PushGateway) subscribeToNATS(topic string) error {
	sub, err := g.js.Subscribe(topic, func(msg *nats.Msg) {
		g.mu.RLock()
		for c := range g.subscriptions[topic] {
			select {
			case c.send <- msg.Data:
			default:
				// Do not block, just drop if channel is full
			}
		}
		g.mu.RUnlock()
		msg.Ack()
	}, nats.ManualAck())

	if err != nil {
		return err
	}

	g.natsSubs[topic] = sub
	g.logger.Info("subscribed to NATS topic", zap.String("topic", topic))
	return nil
}
