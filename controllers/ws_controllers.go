package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yeremiapane/mealplan-app/hub"
)

type SocketController struct {
	Hub      *hub.Hub
	Upgrader websocket.Upgrader
}

func NewSocketController(h *hub.Hub, allowedOrigin string) *SocketController {
	return &SocketController{
		Hub: h,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allowedOrigin == "*" || r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// OrderUpdates -> websocket stream of order events for the caller
func (sc *SocketController) OrderUpdates(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}

	ws, err := sc.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	sc.Hub.Register(ws, v.UserID, v.Processor)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	sc.Hub.Unregister(ws)
}
