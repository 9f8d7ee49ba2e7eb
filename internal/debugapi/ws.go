package debugapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/intio/headless-xserver/internal/xserver"
)

// subscriberQueueLen bounds the events buffered per websocket. Events
// for a subscriber that falls behind are dropped.
const subscriberQueueLen = 64

// WindowEvent is one window change pushed to /events subscribers.
type WindowEvent struct {
	Type     string `json:"type"`
	Window   uint32 `json:"window"`
	X        int16  `json:"x,omitempty"`
	Y        int16  `json:"y,omitempty"`
	Width    uint16 `json:"width,omitempty"`
	Height   uint16 `json:"height,omitempty"`
	Resized  bool   `json:"resized,omitempty"`
	Mask     uint32 `json:"mask,omitempty"`
	Property uint32 `json:"property,omitempty"`
}

// Hub fans window changes out to websocket subscribers. It is a
// window listener, so its callbacks run with the window manager lock
// held and never block.
type Hub struct {
	xserver.NopWindowListener

	log logrus.FieldLogger

	mu     sync.Mutex
	subs   map[chan WindowEvent]struct{}
	closed bool
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{log: log, subs: make(map[chan WindowEvent]struct{})}
}

// Subscribe returns a channel of window events. The channel is closed
// by Unsubscribe or Close.
func (h *Hub) Subscribe() chan WindowEvent {
	ch := make(chan WindowEvent, subscriberQueueLen)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

func (h *Hub) Unsubscribe(ch chan WindowEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) publish(ev WindowEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.WithField("type", ev.Type).Debug("event subscriber is behind, dropping")
		}
	}
}

func geometryEvent(typ string, w *xserver.Window) WindowEvent {
	return WindowEvent{Type: typ, Window: w.ID(), X: w.X, Y: w.Y, Width: w.Width, Height: w.Height}
}

func (h *Hub) OnMapWindow(w *xserver.Window) {
	h.publish(geometryEvent("map", w))
}

func (h *Hub) OnUnmapWindow(w *xserver.Window) {
	h.publish(WindowEvent{Type: "unmap", Window: w.ID()})
}

func (h *Hub) OnChangeWindowZOrder(w *xserver.Window) {
	h.publish(WindowEvent{Type: "restack", Window: w.ID()})
}

func (h *Hub) OnUpdateWindowContent(w *xserver.Window) {
	h.publish(WindowEvent{Type: "content", Window: w.ID()})
}

func (h *Hub) OnUpdateWindowGeometry(w *xserver.Window, resized bool) {
	ev := geometryEvent("geometry", w)
	ev.Resized = resized
	h.publish(ev)
}

func (h *Hub) OnUpdateWindowAttributes(w *xserver.Window, mask xserver.Bitmask) {
	h.publish(WindowEvent{Type: "attributes", Window: w.ID(), Mask: uint32(mask)})
}

func (h *Hub) OnModifyWindowProperty(w *xserver.Window, p *xserver.Property) {
	h.publish(WindowEvent{Type: "property", Window: w.ID(), Property: uint32(p.Name)})
}

func makeWSHandler(
	log logrus.FieldLogger,
	handler func(context.Context, *websocket.Conn),
) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("websocket connect")
			return
		}
		log.WithFields(logrus.Fields{"path": r.URL.Path, "remote": r.RemoteAddr}).Info("websocket connect")
		defer log.WithField("remote", r.RemoteAddr).Info("websocket disconnect")
		defer c.Close(websocket.StatusInternalError, "")
		handler(r.Context(), c)
	}
}

// InputMessage is an inbound /events frame. Type is "pointer" (X, Y),
// "motion" (X, Y as deltas), "button" (Button, Down) or "key" (Code,
// Keysym, Down).
type InputMessage struct {
	Type   string `json:"type"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Button byte   `json:"button"`
	Code   byte   `json:"code"`
	Keysym uint32 `json:"keysym"`
	Down   bool   `json:"down"`
}

func (as *APIServer) inject(msg InputMessage) {
	switch msg.Type {
	case "pointer":
		as.x.InjectPointerMove(msg.X, msg.Y)
	case "motion":
		as.x.InjectPointerMoveDelta(msg.X, msg.Y)
	case "button":
		if msg.Button >= xserver.ButtonLeft && msg.Button <= xserver.ButtonScrollDown {
			as.x.InjectButton(msg.Button, msg.Down)
		}
	case "key":
		if msg.Code >= xserver.MinKeycode {
			as.x.InjectKey(msg.Code, xproto.Keysym(msg.Keysym), msg.Down)
		}
	default:
		as.log.WithField("type", msg.Type).Debug("unknown input message")
	}
}

// streamEvents writes window events to c and injects the input frames
// read from it, until either side goes away.
func (as *APIServer) streamEvents(ctx context.Context, c *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := as.hub.Subscribe()
	defer as.hub.Unsubscribe(events)

	go func() {
		defer cancel()
		for {
			var msg InputMessage
			if err := wsjson.Read(ctx, c, &msg); err != nil {
				return
			}
			as.inject(msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := wsjson.Write(ctx, c, ev); err != nil {
				return
			}
		}
	}
}
