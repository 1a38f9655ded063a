package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is a request on the pose socket.
type WSMessage struct {
	Action string  `json:"action"` // calibrate, reset, set_beta
	Beta   float64 `json:"beta,omitempty"`
}

// WSResponse is pushed on the pose socket.
type WSResponse struct {
	Type    string      `json:"type"` // state, calibrated, reset, beta, error
	State   *State      `json:"state,omitempty"`
	Results interface{} `json:"results,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WebOptions configures the HTTP front end.
type WebOptions struct {
	StaticDir     string
	CalibSamples  int
	CalibDelay    time.Duration
	WritableRegs  []AddrRange
	ClientBacklog int
}

// WebServer serves the live pose, control endpoints and the register debugger.
type WebServer struct {
	pipeline *Pipeline
	opts     WebOptions
	writable []AddrRange

	mu      sync.Mutex
	clients map[chan State]struct{}
}

// NewWebServer builds the server; it does not listen until Run.
func NewWebServer(p *Pipeline, opts WebOptions) *WebServer {
	if opts.ClientBacklog <= 0 {
		opts.ClientBacklog = 4
	}
	return &WebServer{
		pipeline: p,
		opts:     opts,
		writable: opts.WritableRegs,
		clients:  make(map[chan State]struct{}),
	}
}

// Observe fans a cycle result out to pose sockets. Slow clients miss frames.
func (ws *WebServer) Observe(st State) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for ch := range ws.clients {
		select {
		case ch <- st:
		default:
		}
	}
}

func (ws *WebServer) subscribe() chan State {
	ch := make(chan State, ws.opts.ClientBacklog)
	ws.mu.Lock()
	ws.clients[ch] = struct{}{}
	ws.mu.Unlock()
	return ch
}

func (ws *WebServer) unsubscribe(ch chan State) {
	ws.mu.Lock()
	delete(ws.clients, ch)
	ws.mu.Unlock()
}

// Handler returns the route table.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orientation", ws.handleOrientation)
	mux.HandleFunc("/api/state", ws.handleState)
	mux.HandleFunc("/api/calibrate", ws.handleCalibrate)
	mux.HandleFunc("/api/reset", ws.handleReset)
	mux.HandleFunc("/ws/pose", ws.HandlePoseWS)
	mux.HandleFunc("/ws/registers", ws.HandleRegisterDebugWS)
	if ws.opts.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(ws.opts.StaticDir)))
	}
	return mux
}

// Run listens on port until ctx is done.
func (ws *WebServer) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("web server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("json encode error: %v", err)
	}
}

func (ws *WebServer) handleOrientation(w http.ResponseWriter, r *http.Request) {
	st, ok := ws.pipeline.Last()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, st.Pose)
}

func (ws *WebServer) handleState(w http.ResponseWriter, r *http.Request) {
	st, ok := ws.pipeline.Last()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, struct {
		State
		Stats       Stats           `json:"stats"`
		Calibration CalibrationInfo `json:"calibration"`
		Beta        float64         `json:"beta"`
		Device      string          `json:"device"`
	}{
		State:       st,
		Stats:       ws.pipeline.Stats(),
		Calibration: ws.pipeline.Calibration(),
		Beta:        ws.pipeline.FilterParams().Beta,
		Device:      ws.pipeline.DeviceName(),
	})
}

func (ws *WebServer) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := ws.pipeline.Calibrate(ws.opts.CalibSamples, ws.opts.CalibDelay); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, ws.pipeline.Calibration())
}

func (ws *WebServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ws.pipeline.ResetFilter()
	w.WriteHeader(http.StatusNoContent)
}

// HandlePoseWS streams every cycle result and accepts control actions.
func (ws *WebServer) HandlePoseWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("pose: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch := ws.subscribe()
	defer ws.unsubscribe(ch)

	// gorilla allows one concurrent writer
	var writeMu sync.Mutex
	send := func(resp WSResponse) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(resp)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warnf("pose: websocket error: %v", err)
				}
				return
			}
			if err := send(ws.handleAction(msg)); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case st := <-ch:
			if err := send(WSResponse{Type: "state", State: &st}); err != nil {
				return
			}
		}
	}
}

func (ws *WebServer) handleAction(msg WSMessage) WSResponse {
	switch msg.Action {
	case "calibrate":
		if _, err := ws.pipeline.Calibrate(ws.opts.CalibSamples, ws.opts.CalibDelay); err != nil {
			return WSResponse{Type: "error", Message: err.Error()}
		}
		return WSResponse{Type: "calibrated", Results: ws.pipeline.Calibration()}
	case "reset":
		ws.pipeline.ResetFilter()
		return WSResponse{Type: "reset"}
	case "set_beta":
		if err := ws.pipeline.SetBeta(msg.Beta); err != nil {
			return WSResponse{Type: "error", Message: err.Error()}
		}
		return WSResponse{Type: "beta", Results: msg.Beta}
	default:
		return WSResponse{Type: "error", Message: fmt.Sprintf("unknown action: %s", msg.Action)}
	}
}
