package websocket

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
	"auction-marketplace/pkg/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler upgrades subscribers onto product, user or global channels.
type WebSocketHandler struct {
	connManager domain.ConnectionManager
	heartbeat   time.Duration
	sendBuffer  int
	log         logger.Logger
}

func NewWebSocketHandler(connManager domain.ConnectionManager, heartbeat time.Duration, sendBuffer int, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		connManager: connManager,
		heartbeat:   heartbeat,
		sendBuffer:  sendBuffer,
		log:         log,
	}
}

func (h *WebSocketHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/products/{productID}", h.HandleProduct).Methods(http.MethodGet)
	r.HandleFunc("/ws/users/{userID}", h.HandleUser).Methods(http.MethodGet)
	r.HandleFunc("/ws/global", h.HandleGlobal).Methods(http.MethodGet)
}

func (h *WebSocketHandler) HandleProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(mux.Vars(r)["productID"], 10, 64)
	if err != nil || productID <= 0 {
		http.Error(w, "invalid product id", http.StatusBadRequest)
		return
	}
	h.serve(w, r, domain.ProductChannel(productID), map[string]interface{}{"productId": productID})
}

func (h *WebSocketHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["userID"], 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	h.serve(w, r, domain.UserChannel(userID), map[string]interface{}{"userId": userID})
}

func (h *WebSocketHandler) HandleGlobal(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, domain.GlobalChannel, map[string]interface{}{})
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, channel string, hello map[string]interface{}) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewConnection(utils.GenerateConnectionID(), channel, conn, h.sendBuffer, h.log)
	h.connManager.RegisterConnection(wsConn)

	if payload, err := json.Marshal(domain.NewEvent(domain.EventConnected, hello)); err == nil {
		wsConn.Send(payload)
	}

	go wsConn.writePump(h.heartbeat)
	go wsConn.readPump(h.heartbeat, func() {
		h.connManager.UnregisterConnection(wsConn)
	})
}
