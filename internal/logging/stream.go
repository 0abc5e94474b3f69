package logging

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// StreamLogger broadcasts log lines to connected WebSocket clients and keeps
// a short history so a freshly attached client sees recent context.
type StreamLogger struct {
	clients   map[*websocket.Conn]time.Time
	broadcast chan LogMessage
	mu        sync.RWMutex
	stopCh    chan struct{}
	history   []LogMessage
	historyMu sync.RWMutex
	seq       uint64

	historyCap     int
	maxConnections int
}

// LogMessage is the wire form of one log line on the stream.
type LogMessage struct {
	ID        uint64                 `json:"id,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var ErrMaxConnectionsReached = errors.New("maximum WebSocket connections reached")

var (
	globalStream *StreamLogger
	streamOnce   sync.Once
)

// GetStreamLogger returns the process-wide stream logger, starting it and
// hooking it into logrus on first use.
func GetStreamLogger() *StreamLogger {
	streamOnce.Do(func() {
		globalStream = NewStreamLogger()
		globalStream.Start()
		log.AddHook(streamHook{globalStream})
	})
	return globalStream
}

func NewStreamLogger() *StreamLogger {
	return &StreamLogger{
		clients:        make(map[*websocket.Conn]time.Time),
		broadcast:      make(chan LogMessage, 100),
		stopCh:         make(chan struct{}),
		history:        make([]LogMessage, 0, 500),
		historyCap:     500,
		maxConnections: 32,
	}
}

// Start launches the broadcast loop.
func (s *StreamLogger) Start() {
	go func() {
		for {
			select {
			case msg := <-s.broadcast:
				s.mu.RLock()
				for conn := range s.clients {
					if err := conn.WriteJSON(msg); err != nil {
						go s.RemoveClient(conn)
					}
				}
				s.mu.RUnlock()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop closes every client and halts broadcasting.
func (s *StreamLogger) Stop() {
	close(s.stopCh)
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]time.Time)
}

// AddClient replays the buffered history to a client, then registers it.
// Registration happens last: once registered the broadcast loop owns writes
// to the conn, and gorilla/websocket forbids concurrent writers.
func (s *StreamLogger) AddClient(conn *websocket.Conn) error {
	s.mu.RLock()
	count := len(s.clients)
	s.mu.RUnlock()
	if count >= s.maxConnections {
		return ErrMaxConnectionsReached
	}

	s.historyMu.RLock()
	replay := make([]LogMessage, len(s.history))
	copy(replay, s.history)
	s.historyMu.RUnlock()
	for _, msg := range replay {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) >= s.maxConnections {
		conn.Close()
		return ErrMaxConnectionsReached
	}
	s.clients[conn] = time.Now()
	return nil
}

// RemoveClient detaches and closes a client. Safe to call twice.
func (s *StreamLogger) RemoveClient(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		conn.Close()
	}
}

// ConnectionCount returns the number of attached clients.
func (s *StreamLogger) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast queues one log line for delivery, recording it in history.
// Delivery is best-effort: when the buffer is full the line is dropped
// rather than blocking the logger.
func (s *StreamLogger) Broadcast(level, message string, fields map[string]interface{}) {
	msg := LogMessage{
		ID:        atomic.AddUint64(&s.seq, 1),
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Fields:    fields,
	}

	s.historyMu.Lock()
	s.history = append(s.history, msg)
	if len(s.history) > s.historyCap {
		s.history = s.history[len(s.history)-s.historyCap:]
	}
	s.historyMu.Unlock()

	select {
	case s.broadcast <- msg:
	default:
	}
}

// streamHook mirrors logrus entries onto the stream.
type streamHook struct {
	stream *StreamLogger
}

func (h streamHook) Levels() []log.Level {
	return []log.Level{log.ErrorLevel, log.WarnLevel, log.InfoLevel}
}

func (h streamHook) Fire(entry *log.Entry) error {
	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		fields[k] = v
	}
	h.stream.Broadcast(entry.Level.String(), entry.Message, fields)
	return nil
}
