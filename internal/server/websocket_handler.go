package server

import (
	"net/http"

	"routechat/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced at the edge.
		return true
	},
}

// WebSocketHandler upgrades an authenticated request into a hub client.
func WebSocketHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserIDFrom(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			if hub.log != nil {
				hub.log.Errorf("websocket upgrade failed for user %s: %v", userID, err)
			}
			return
		}

		client := NewClient(hub, conn, userID, uuid.New().String())
		hub.register <- client
	}
}
