package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dotframe/snapbooth/internal/camera"
	"github.com/dotframe/snapbooth/internal/raster"
)

const (
	// writeWait bounds control-frame writes.
	writeWait = 10 * time.Second

	// pongWait is how long a silent connection stays open.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// defaultMaxFrameBytes caps a single preview frame.
	defaultMaxFrameBytes = 512 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleStream upgrades the connection and feeds binary preview frames from
// the visitor's browser into the session's remote camera device. Each frame
// is a PNG or JPEG snapshot of the live video element; the newest one wins.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	dev, ok := s.sessions.Device(sessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	device, ok := dev.(*camera.RemoteDevice)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "session does not accept remote frames"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("stream upgrade failed session=%s err=%v", sessionID, err)
		return
	}

	s.metrics.streamsActive.Inc()
	defer s.metrics.streamsActive.Dec()

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	conn.SetReadLimit(s.maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	defer conn.Close()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Printf("stream closed session=%s err=%v", sessionID, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.BinaryMessage {
			continue
		}

		img, err := raster.Decode(data)
		if err != nil {
			s.logger.Printf("stream frame decode failed session=%s err=%v", sessionID, err)
			continue
		}
		device.Push(img)
		s.metrics.framesReceived.Inc()
	}
}

// pingLoop keeps the connection alive; only this goroutine writes, the read
// pump never does, so writes stay single-threaded.
func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
