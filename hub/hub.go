// Package hub pushes order events to connected websocket clients.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/mealplan-app/models"
)

const (
	EventOrderUpdate    = "order_update"
	EventPaymentUpdate  = "payment_update"
	EventDeliverySkip   = "delivery_skipped"
	EventAddressUpdated = "address_updated"
)

const writeWait = 10 * time.Second

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type client struct {
	userID string
	// watchAll clients (staff, admin) receive every order's events.
	watchAll bool
	writeMu  sync.Mutex
}

// Hub tracks connections per user. Staff and admin connections see every
// order; customers only their own.
type Hub struct {
	mutex   sync.RWMutex
	clients map[*websocket.Conn]*client
	log     logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{clients: make(map[*websocket.Conn]*client), log: log}
}

func (h *Hub) Register(conn *websocket.Conn, userID string, watchAll bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = &client{userID: userID, watchAll: watchAll}
	h.log.WithFields(logrus.Fields{"user_id": userID, "clients": len(h.clients)}).Info("websocket client registered")
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	delete(h.clients, conn)
	h.mutex.Unlock()
	conn.Close()
}

func (h *Hub) Clients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) BroadcastOrderUpdate(order models.Order) {
	h.Publish(order.UserID, Message{Event: EventOrderUpdate, Data: order})
}

func (h *Hub) BroadcastPaymentUpdate(order models.Order, check models.PaymentCheck) {
	h.Publish(order.UserID, Message{
		Event: EventPaymentUpdate,
		Data: map[string]interface{}{
			"order":   order,
			"payment": check,
		},
	})
}

// Publish sends msg to userID's connections and to every watch-all
// connection. Connections that fail to accept the write are dropped.
func (h *Hub) Publish(userID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).WithField("event", msg.Event).Error("marshal websocket message")
		return
	}

	h.mutex.RLock()
	targets := make(map[*websocket.Conn]*client)
	for conn, c := range h.clients {
		if c.watchAll || c.userID == userID {
			targets[conn] = c
		}
	}
	h.mutex.RUnlock()

	for conn, c := range targets {
		c.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.TextMessage, data)
		c.writeMu.Unlock()
		if err != nil {
			h.log.WithError(err).WithField("user_id", c.userID).Warn("dropping websocket client")
			h.Unregister(conn)
		}
	}
}
