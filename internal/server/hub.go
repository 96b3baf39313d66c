package server

import (
	"sync"

	"routechat/internal/feeds"
	"routechat/internal/services"
	"routechat/pkg/logger"

	"github.com/google/uuid"
)

const maxConnectionsPerUser = 10

// Hub owns the set of live websocket clients. Registration and teardown flow
// through channels so client lifecycle never races the broadcast path.
type Hub struct {
	clients    map[uuid.UUID]map[string]*Client
	register   chan *Client
	unregister chan *Client

	feeds    *feeds.Feeds
	presence *services.PresenceService
	log      *logger.Logger

	mu       sync.RWMutex
	stopChan chan struct{}
}

func NewHub(feedSource *feeds.Feeds, presence *services.PresenceService, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[string]*Client),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		feeds:      feedSource,
		presence:   presence,
		log:        log,
		stopChan:   make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case <-h.stopChan:
			return
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[string]*Client)
	}

	if len(h.clients[client.userID]) >= maxConnectionsPerUser {
		if h.log != nil {
			h.log.Warnf("max connections reached for user %s, evicting oldest", client.userID)
		}
		for id, c := range h.clients[client.userID] {
			h.removeClient(c)
			delete(h.clients[client.userID], id)
			break
		}
	}

	h.clients[client.userID][client.clientID] = client

	if h.log != nil {
		h.log.Infof("client connected user=%s client=%s", client.userID, client.clientID)
	}

	go client.writePump()
	go client.readPump()
	client.startConversationFeed()
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userClients, ok := h.clients[client.userID]; ok {
		if _, ok := userClients[client.clientID]; ok {
			delete(userClients, client.clientID)
			h.removeClient(client)

			if len(userClients) == 0 {
				delete(h.clients, client.userID)
			}

			if h.log != nil {
				h.log.Infof("client disconnected user=%s client=%s", client.userID, client.clientID)
			}
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	client.close()
}

// Stop shuts the hub down and closes every connection.
func (h *Hub) Stop() {
	close(h.stopChan)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userClients := range h.clients {
		for _, client := range userClients {
			h.removeClient(client)
		}
	}
	h.clients = make(map[uuid.UUID]map[string]*Client)
}
