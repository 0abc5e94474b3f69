package server

import (
	"net/http"
	"strings"
	"time"

	"keybalancer-go/internal/logging"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
)

// registerLogStream mounts the live log WebSocket. Only same-origin upgrades
// with a valid admin session are accepted.
func (s *Server) registerLogStream(engine *gin.Engine) {
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return strings.Contains(origin, r.Host)
	}}

	engine.GET("/ws/logs", func(c *gin.Context) {
		user := s.sessionUser(c)
		if user == nil || !user.Admin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}

		streamer := logging.GetStreamLogger()
		if err := streamer.AddClient(conn); err != nil {
			_ = conn.WriteJSON(map[string]string{"error": "Maximum connections reached"})
			conn.Close()
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
			return nil
		})

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Reader loop keeps the connection alive and detects disconnects.
		go func() {
			defer close(done)
			defer streamer.RemoveClient(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}
