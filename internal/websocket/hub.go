package websocket

import (
	"encoding/json"
	"sync"
)

const (
	MessageBalance = "balance"
	MessageBooking = "booking"
)

type BalanceUpdate struct {
	AccountID string `json:"account_id"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
}

type BookingUpdate struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans out per-user notifications to every open connection of that user.
// Slow clients drop messages instead of blocking the sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	h.send(userID, message{Type: MessageBalance, Data: update})
}

func (h *Hub) BroadcastBooking(userID string, update BookingUpdate) {
	h.send(userID, message{Type: MessageBooking, Data: update})
}

func (h *Hub) send(userID string, msg message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
