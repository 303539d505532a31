package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"auction-sync/internal/livechannel"
	"auction-sync/internal/models"
	"auction-sync/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TypeBidRejected is sent back to the bidder when a place_bid frame fails
const TypeBidRejected = "bid_rejected"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// BidRejectedPayload is the data of a bid_rejected frame
type BidRejectedPayload struct {
	AuctionID string  `json:"auctionId"`
	Amount    float64 `json:"amount"`
	Error     string  `json:"error"`
}

// BidPlacer accepts bids arriving over the socket
type BidPlacer interface {
	PlaceBid(auctionID, userID, userName string, amount float64) (models.Bid, models.Auction, error)
}

type client struct {
	ws        *websocket.Conn
	userID    string
	send      chan []byte
	rooms     map[string]struct{} // guarded by Hub.mu
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub keeps the connected clients and the auction rooms they joined
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	rooms    map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler upgrades GET /ws?userId=... and serves the connection until it closes
func (h *Hub) Handler(placer BidPlacer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			utils.Warn("live: upgrade failed", map[string]any{"error": err.Error()})
			return
		}

		cl := &client{
			ws:     ws,
			userID: c.Query("userId"),
			send:   make(chan []byte, sendBuffer),
			rooms:  make(map[string]struct{}),
		}
		h.register(cl)
		utils.Info("live: client connected", map[string]any{"user_id": cl.userID})

		go h.writePump(cl)
		h.readPump(cl, placer)
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[cl] = struct{}{}
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, cl)
	for room := range cl.rooms {
		h.leaveLocked(cl, room)
	}
	h.mu.Unlock()

	cl.close()
	utils.Info("live: client disconnected", map[string]any{"user_id": cl.userID})
}

func (h *Hub) join(cl *client, auctionID string) {
	if auctionID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[auctionID]
	if members == nil {
		members = make(map[*client]struct{})
		h.rooms[auctionID] = members
	}
	members[cl] = struct{}{}
	cl.rooms[auctionID] = struct{}{}
}

func (h *Hub) leave(cl *client, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(cl, auctionID)
}

func (h *Hub) leaveLocked(cl *client, auctionID string) {
	delete(cl.rooms, auctionID)
	members := h.rooms[auctionID]
	delete(members, cl)
	if len(members) == 0 {
		delete(h.rooms, auctionID)
	}
}

func (h *Hub) readPump(cl *client, placer BidPlacer) {
	defer func() {
		h.unregister(cl)
		_ = cl.ws.Close()
	}()

	cl.ws.SetReadLimit(maxMessageSize)
	_ = cl.ws.SetReadDeadline(time.Now().Add(pongWait))
	cl.ws.SetPongHandler(func(string) error {
		return cl.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := cl.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Warn("live: read failed", map[string]any{"user_id": cl.userID, "error": err.Error()})
			}
			return
		}
		_ = cl.ws.SetReadDeadline(time.Now().Add(pongWait))

		var env livechannel.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			utils.Warn("live: bad frame", map[string]any{"user_id": cl.userID, "error": err.Error()})
			continue
		}
		h.dispatch(cl, env, placer)
	}
}

func (h *Hub) dispatch(cl *client, env livechannel.Envelope, placer BidPlacer) {
	switch env.Type {
	case livechannel.TypeJoinAuction, livechannel.TypeLeaveAuction:
		var p livechannel.RoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			utils.Warn("live: bad room frame", map[string]any{"user_id": cl.userID, "error": err.Error()})
			return
		}
		if env.Type == livechannel.TypeJoinAuction {
			h.join(cl, p.AuctionID)
		} else {
			h.leave(cl, p.AuctionID)
		}
	case livechannel.TypePlaceBid:
		var p livechannel.PlaceBidPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			utils.Warn("live: bad bid frame", map[string]any{"user_id": cl.userID, "error": err.Error()})
			return
		}
		if p.UserID == "" {
			p.UserID = cl.userID
		}
		if placer == nil {
			return
		}
		// accepted bids reach the room through the placer's broadcast
		if _, _, err := placer.PlaceBid(p.AuctionID, p.UserID, p.UserName, p.Amount); err != nil {
			utils.Warn("live: bid rejected", map[string]any{
				"auction_id": p.AuctionID,
				"user_id":    p.UserID,
				"amount":     p.Amount,
				"error":      err.Error(),
			})
			h.sendTo(cl, TypeBidRejected, BidRejectedPayload{AuctionID: p.AuctionID, Amount: p.Amount, Error: err.Error()})
		}
	default:
		utils.Debug("live: ignoring frame", map[string]any{"user_id": cl.userID, "type": env.Type})
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-cl.send:
			_ = cl.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastToAuction sends an event to everyone in the auction's room
func (h *Hub) BroadcastToAuction(auctionID, eventType string, payload any) {
	frame, err := livechannel.Encode(eventType, payload)
	if err != nil {
		utils.Error("live: encode broadcast failed", map[string]any{"type": eventType, "error": err.Error()})
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[auctionID]))
	for cl := range h.rooms[auctionID] {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	h.deliver(targets, frame)
}

// BroadcastAll sends an event to every connected client
func (h *Hub) BroadcastAll(eventType string, payload any) {
	frame, err := livechannel.Encode(eventType, payload)
	if err != nil {
		utils.Error("live: encode broadcast failed", map[string]any{"type": eventType, "error": err.Error()})
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	h.deliver(targets, frame)
}

func (h *Hub) sendTo(cl *client, eventType string, payload any) {
	frame, err := livechannel.Encode(eventType, payload)
	if err != nil {
		return
	}
	h.deliver([]*client{cl}, frame)
}

// deliver queues frame for each target. A client too slow to keep up is
// dropped rather than stalling the broadcaster.
func (h *Hub) deliver(targets []*client, frame []byte) {
	for _, cl := range targets {
		h.mu.RLock()
		_, alive := h.clients[cl]
		if alive {
			select {
			case cl.send <- frame:
			default:
				alive = false
			}
		}
		h.mu.RUnlock()

		if !alive {
			h.unregister(cl)
		}
	}
}

// RoomSize returns how many clients joined the auction's room
func (h *Hub) RoomSize(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[auctionID])
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		all = append(all, cl)
	}
	h.mu.RUnlock()

	for _, cl := range all {
		h.unregister(cl)
	}
}
