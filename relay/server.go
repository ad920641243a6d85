package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lixenwraith/buildrun/logging"
	"github.com/lixenwraith/buildrun/network"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Routes mounts the websocket endpoint and a health probe
func Routes(h *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/ws", h.serveWS)
	return r
}

func (h *Hub) healthz(w http.ResponseWriter, _ *http.Request) {
	st := h.Stats()
	authority, _ := h.Authority()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"clients":   st.Clients,
		"authority": authority,
		"relayed":   st.Relayed,
	})
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	id, err := h.readHello(ws)
	if err != nil {
		h.malformed.Add(1)
		h.logger.Warn("bad hello", zap.String("addr", r.RemoteAddr), zap.Error(err))
		ws.Close()
		return
	}

	c := &client{
		id:      id,
		ws:      ws,
		sendCh:  make(chan []byte, h.cfg.SendQueue),
		limiter: rate.NewLimiter(h.cfg.EventRate, h.cfg.EventBurst),
		closeCh: make(chan struct{}),
	}
	if !h.join(c) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rejected"),
			time.Now().Add(h.cfg.WriteTimeout))
		ws.Close()
		return
	}
	defer h.leave(c)

	logging.Go(h.logger, "relay-write", func() { h.writeLoop(c) })
	h.readLoop(c)
}

func (h *Hub) readHello(ws *websocket.Conn) (string, error) {
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.HelloTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return "", err
	}
	_ = ws.SetReadDeadline(time.Time{})
	f, err := network.ParseFrame(data)
	if err != nil {
		return "", err
	}
	return network.ParseHello(f)
}

func (h *Hub) readLoop(c *client) {
	defer c.close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := network.ParseFrame(data)
		if err != nil {
			h.malformed.Add(1)
			continue
		}
		if f.Type == network.FrameEvent {
			h.relay(c, data)
		}
	}
}

// writeLoop is the connection's only writer
func (h *Hub) writeLoop(c *client) {
	defer c.ws.Close()

	for {
		select {
		case <-c.closeCh:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteTimeout))
			return
		case data := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}
