package websocket

import (
	"encoding/json"
	"sync"
)

const (
	TypeWallet         = "wallet"
	TypeRecommendation = "recommendation"
)

// Message is the envelope every push frame is wrapped in.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type WalletUpdate struct {
	WalletID   string `json:"wallet_id"`
	Coins      int64  `json:"coins"`
	TotalSpent string `json:"total_spent"`
	Reason     string `json:"reason"`
}

type RecommendationUpdate struct {
	ID     string `json:"id"`
	TempID string `json:"temp_id"`
	Status string `json:"status"`
	Answer string `json:"answer,omitempty"`
}

// Hub fans frames out to every open connection of a user. Slow clients drop
// frames instead of blocking the sender.
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

func (h *Hub) NotifyWallet(userID string, update WalletUpdate) {
	h.send(userID, Message{Type: TypeWallet, Data: update})
}

func (h *Hub) NotifyRecommendation(userID string, update RecommendationUpdate) {
	h.send(userID, Message{Type: TypeRecommendation, Data: update})
}

// Connections reports how many sockets the user has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) send(userID string, msg Message) {
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
