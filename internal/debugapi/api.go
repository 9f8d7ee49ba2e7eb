// Package debugapi serves a small HTTP API for looking into a running
// display: clients, the window tree, atoms, screenshots and metrics. It
// also injects input and streams window changes over a websocket.
package debugapi

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/intio/headless-xserver/internal/xserver"
)

type APIServer struct {
	server  *http.Server
	x       *xserver.Server
	hub     *Hub
	metrics http.Handler
	log     logrus.FieldLogger
}

func (as *APIServer) jsonResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	as.log.WithFields(logrus.Fields{"status": status, "path": r.URL.Path}).Debug(r.Method)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	e := json.NewEncoder(w)
	e.Encode(data)
}

// NewAPIServer builds the API for x. metrics serves /metrics; nil
// leaves the route answering 404.
func NewAPIServer(x *xserver.Server, listenAddr string, metrics http.Handler, log logrus.FieldLogger) (as *APIServer) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	router := mux.NewRouter()
	as = &APIServer{
		server: &http.Server{
			Addr:    listenAddr,
			Handler: router,
			// No write timeout: /events connections live long.
			ReadHeaderTimeout: 1 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		x:       x,
		hub:     NewHub(log),
		metrics: metrics,
		log:     log,
	}
	unlock := x.Lock(xserver.LockWindowManager)
	x.Windows.AddWindowListener(as.hub)
	unlock()

	router.HandleFunc("/clients/", as.listClients).Methods("GET")
	router.HandleFunc("/clients/{id:[0-9a-fx]+}", as.client).Methods("GET", "DELETE")
	router.HandleFunc("/windows/", as.listWindows).Methods("GET")
	router.HandleFunc("/windows/{id:[0-9a-fx]+}", as.window).Methods("GET")
	router.HandleFunc("/windows/{id:[0-9a-fx]+}/properties", as.windowProperties).Methods("GET")
	router.HandleFunc("/windows/{id:[0-9a-fx]+}/disable", as.disableWindow).Methods("POST")
	router.HandleFunc("/atoms/", as.listAtoms).Methods("GET")
	router.HandleFunc("/input/pointer", as.inputPointer).Methods("POST")
	router.HandleFunc("/input/button", as.inputButton).Methods("POST")
	router.HandleFunc("/input/key", as.inputKey).Methods("POST")
	router.HandleFunc("/input/relative", as.inputRelative).Methods("POST")
	router.HandleFunc("/screenshot", as.screenshot).Methods("GET")
	router.Handle("/metrics", as.metrics).Methods("GET")
	router.HandleFunc("/events", makeWSHandler(as.log, as.streamEvents))

	router.PathPrefix("/").Handler(http.NotFoundHandler())
	return as
}

// Handler is the API's root handler.
func (as *APIServer) Handler() http.Handler {
	return as.server.Handler
}

// Start serves until Shutdown is called.
func (as *APIServer) Start() error {
	as.log.Infof("Listening on http://%s", as.server.Addr)
	err := as.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener, closes the event streams and waits for
// requests in flight.
func (as *APIServer) Shutdown(ctx context.Context) error {
	unlock := as.x.Lock(xserver.LockWindowManager)
	as.x.Windows.RemoveWindowListener(as.hub)
	unlock()
	as.hub.Close()
	return as.server.Shutdown(ctx)
}

func getID(r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 0, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

func decodeBody(r *http.Request) (map[string]interface{}, error) {
	var data map[string]interface{}
	err := json.NewDecoder(r.Body).Decode(&data)
	return data, err
}

func getInt(key string, data map[string]interface{}) *int {
	if value, ok := data[key]; ok {
		if f, ok := value.(float64); ok {
			i := int(f)
			return &i
		}
	}
	return nil
}

func getBool(key string, data map[string]interface{}) *bool {
	if value, ok := data[key]; ok {
		if b, ok := value.(bool); ok {
			return &b
		}
	}
	return nil
}

type clientView struct {
	ID       uint32 `json:"id"`
	Remote   string `json:"remote"`
	Sequence uint16 `json:"sequence"`
}

func viewClient(c *xserver.Client) clientView {
	return clientView{ID: c.Base(), Remote: c.RemoteAddr(), Sequence: c.Sequence()}
}

func (as *APIServer) listClients(w http.ResponseWriter, r *http.Request) {
	items := []clientView{}
	for _, c := range as.x.Clients() {
		items = append(items, viewClient(c))
	}
	as.jsonResponse(w, r, http.StatusOK, map[string]interface{}{"items": items})
}

func (as *APIServer) client(w http.ResponseWriter, r *http.Request) {
	id, ok := getID(r)
	if !ok {
		as.jsonResponse(w, r, http.StatusNotFound, nil)
		return
	}
	c := as.x.Client(id)
	if c == nil {
		as.jsonResponse(w, r, http.StatusNotFound, nil)
		return
	}
	switch r.Method {
	case "GET":
		as.jsonResponse(w, r, http.StatusOK, map[string]interface{}{"item": viewClient(c)})
	case "DELETE":
		as.log.WithField("client", id).Info("disconnecting client")
		as.x.Disconnect(id)
		as.jsonResponse(w, r, http.StatusOK, nil)
	default:
		panic("unreachable")
	}
}

type windowView struct {
	ID          uint32   `json:"id"`
	Parent      uint32   `json:"parent,omitempty"`
	X           int16    `json:"x"`
	Y           int16    `json:"y"`
	Width       uint16   `json:"width"`
	Height      uint16   `json:"height"`
	BorderWidth uint16   `json:"border_width"`
	InputOnly   bool     `json:"input_only"`
	MapState    string   `json:"map_state"`
	Enabled     bool     `json:"enabled"`
	Focused     bool     `json:"focused"`
	Application bool     `json:"application"`
	Name        string   `json:"name,omitempty"`
	Class       string   `json:"class,omitempty"`
	Children    []uint32 `json:"children"`
}

var mapStateNames = map[byte]string{
	xproto.MapStateUnmapped:   "unmapped",
	xproto.MapStateUnviewable: "unviewable",
	xproto.MapStateViewable:   "viewable",
}

// viewWindow runs with LockWindowManager held.
func (as *APIServer) viewWindow(win *xserver.Window) windowView {
	v := windowView{
		ID:          win.ID(),
		X:           win.X,
		Y:           win.Y,
		Width:       win.Width,
		Height:      win.Height,
		BorderWidth: win.BorderWidth,
		InputOnly:   !win.IsInputOutput(),
		MapState:    mapStateNames[win.MapState()],
		Enabled:     win.Attributes.Enabled,
		Focused:     as.x.Windows.Focused() == win,
		Application: win.IsApplicationWindow(),
		Name:        win.Name(),
		Class:       win.ClassName(),
		Children:    []uint32{},
	}
	if p := win.Parent(); p != nil {
		v.Parent = p.ID()
	}
	for _, child := range win.Children() {
		v.Children = append(v.Children, child.ID())
	}
	return v
}

func (as *APIServer) listWindows(w http.ResponseWriter, r *http.Request) {
	unlock := as.x.Lock(xserver.LockWindowManager)
	items := []windowView{}
	for _, win := range as.x.Windows.Windows() {
		items = append(items, as.viewWindow(win))
	}
	unlock()
	as.jsonResponse(w, r, http.StatusOK, map[string]interface{}{"items": items})
}

// withWindow runs fn on the window named by the route with
// LockWindowManager held, or answers 404.
func (as *APIServer) withWindow(w http.ResponseWriter, r *http.Request, fn func(win *xserver.Window) interface{}) {
	id, ok := getID(r)
	if !ok {
		as.jsonResponse(w, r, http.StatusNotFound, nil)
		return
	}
	unlock := as.x.Lock(xserver.LockWindowManager)
	win := as.x.Windows.Get(id)
	var data interface{}
	if win != nil {
		data = fn(win)
	}
	unlock()
	if win == nil {
		as.jsonResponse(w, r, http.StatusNotFound, nil)
		return
	}
	as.jsonResponse(w, r, http.StatusOK, data)
}

func (as *APIServer) window(w http.ResponseWriter, r *http.Request) {
	as.withWindow(w, r, func(win *xserver.Window) interface{} {
		return map[string]interface{}{"item": as.viewWindow(win)}
	})
}

type propertyView struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Format byte   `json:"format"`
	Value  string `json:"value"`
}

func (as *APIServer) windowProperties(w http.ResponseWriter, r *http.Request) {
	as.withWindow(w, r, func(win *xserver.Window) interface{} {
		items := []propertyView{}
		for _, p := range win.Properties() {
			name, _ := as.x.Atoms.Name(p.Name)
			typ, _ := as.x.Atoms.Name(p.Type)
			items = append(items, propertyView{
				Name:   name,
				Type:   typ,
				Format: p.Format,
				Value:  p.Text(as.x.Atoms),
			})
		}
		return map[string]interface{}{"items": items}
	})
}

func (as *APIServer) disableWindow(w http.ResponseWriter, r *http.Request) {
	as.withWindow(w, r, func(win *xserver.Window) interface{} {
		win.DisableSubtree()
		return map[string]interface{}{"item": as.viewWindow(win)}
	})
}

type atomView struct {
	ID   xproto.Atom `json:"id"`
	Name string      `json:"name"`
}

func (as *APIServer) listAtoms(w http.ResponseWriter, r *http.Request) {
	names := as.x.Atoms.Names()
	items := make([]atomView, len(names))
	for i, name := range names {
		items[i] = atomView{ID: xproto.Atom(i + 1), Name: name}
	}
	as.jsonResponse(w, r, http.StatusOK, map[string]interface{}{"items": items})
}

// inputPointer moves the pointer to "x","y" or by "dx","dy".
func (as *APIServer) inputPointer(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		as.jsonResponse(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	if X, Y := getInt("x", data), getInt("y", data); X != nil && Y != nil {
		as.x.InjectPointerMove(*X, *Y)
	} else if DX, DY := getInt("dx", data), getInt("dy", data); DX != nil || DY != nil {
		var dx, dy int
		if DX != nil {
			dx = *DX
		}
		if DY != nil {
			dy = *DY
		}
		as.x.InjectPointerMoveDelta(dx, dy)
	} else {
		as.jsonResponse(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	as.pointerResponse(w, r)
}

func (as *APIServer) pointerResponse(w http.ResponseWriter, r *http.Request) {
	unlock := as.x.Lock(xserver.LockInputDevice)
	p := map[string]interface{}{
		"x":       as.x.Input.Pointer.X,
		"y":       as.x.Input.Pointer.Y,
		"buttons": uint32(as.x.Input.Pointer.Buttons()),
	}
	unlock()
	as.jsonResponse(w, r, http.StatusOK, map[string]interface{}{"item": p})
}

// inputButton presses ("down": true) or releases a pointer button.
func (as *APIServer) inputButton(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		as.jsonResponse(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	button, down := getInt("button", data), getBool("down", data)
	if button == nil || down == nil || *button < int(xserver.ButtonLeft) || *button > int(xserver.ButtonScrollDown) {
		as.jsonResponse(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	as.x.InjectButton(byte(*button), *down)
	as.pointerResponse(w, r)
}

// inputKey presses or releases "code", binding "keysym" to it when
// given.
func (as *APIServer) inputKey(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		as.jsonResponse(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	code, down := getInt("code", data), getBool("down", data)
	if code == nil || down == nil || *code < xserver.MinKeycode || *code > xserver.MaxKeycode {
		as.jsonResponse(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	var sym xproto.Keysym
	if s := getInt("keysym", data); s != nil {
		sym = xproto.Keysym(*s)
	}
	as.x.InjectKey(byte(*code), sym, *down)
	as.jsonResponse(w, r, http.StatusOK, nil)
}

func (as *APIServer) inputRelative(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		as.jsonResponse(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	if on := getBool("enabled", data); on != nil {
		as.log.WithField("enabled", *on).Info("relative mouse mode")
		as.x.SetRelativeMouse(*on)
	}
	as.jsonResponse(w, r, http.StatusOK, map[string]interface{}{"enabled": as.x.RelativeMouse()})
}

func (as *APIServer) screenshot(w http.ResponseWriter, r *http.Request) {
	img := as.x.Snapshot()
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		as.log.WithError(err).Warn("screenshot")
		return
	}
	as.log.WithFields(logrus.Fields{"status": http.StatusOK, "path": r.URL.Path}).Debug(r.Method)
}
