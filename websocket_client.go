package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	errNotConnected = errors.New("websocket: not connected")
	errClientClosed = errors.New("websocket: client closed")
)

// WebSocketClient ships window summaries to a monitoring server
type WebSocketClient struct {
	conn           *websocket.Conn
	serverURL      string
	connected      bool
	mutex          sync.RWMutex
	sendChannel    chan *WindowMetrics
	flushRequests  chan chan error
	done           chan struct{}
	reconnectDelay time.Duration
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	agentID        string
	log            *zap.Logger
}

// NewWebSocketClient creates a client for serverURL; nothing is dialed yet
func NewWebSocketClient(serverURL, agentID string, log *zap.Logger) *WebSocketClient {
	return &WebSocketClient{
		serverURL:      serverURL,
		sendChannel:    make(chan *WindowMetrics, 100),
		flushRequests:  make(chan chan error),
		done:           make(chan struct{}),
		reconnectDelay: 5 * time.Second,
		maxMessageSize: 512,
		writeWait:      10 * time.Second,
		pongWait:       60 * time.Second,
		pingPeriod:     54 * time.Second, // must be less than pongWait
		agentID:        agentID,
		log:            log,
	}
}

// Connect establishes connection to the WebSocket server
func (wsc *WebSocketClient) Connect() error {
	wsc.mutex.Lock()
	defer wsc.mutex.Unlock()

	if wsc.connected {
		return nil
	}

	u, err := url.Parse(wsc.serverURL)
	if err != nil {
		return err
	}

	wsc.log.Info("connecting to websocket server", zap.String("url", wsc.serverURL))

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}

	wsc.conn = conn
	wsc.connected = true

	conn.SetReadLimit(wsc.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsc.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsc.pongWait))
		return nil
	})

	go wsc.readPump(conn)
	go wsc.writePump(conn)

	wsc.log.Info("connected to websocket server")
	return nil
}

// Disconnect closes the WebSocket connection and stops the pumps
func (wsc *WebSocketClient) Disconnect() {
	wsc.mutex.Lock()
	defer wsc.mutex.Unlock()

	select {
	case <-wsc.done:
	default:
		close(wsc.done)
	}
	if !wsc.connected {
		return
	}
	if wsc.conn != nil {
		wsc.conn.Close()
	}

	wsc.connected = false
	wsc.log.Info("disconnected from websocket server")
}

// IsConnected returns the connection status
func (wsc *WebSocketClient) IsConnected() bool {
	wsc.mutex.RLock()
	defer wsc.mutex.RUnlock()
	return wsc.connected
}

// SendMetrics queues metrics for the writer without blocking; a full queue
// drops them
func (wsc *WebSocketClient) SendMetrics(metrics *WindowMetrics) {
	if metrics == nil {
		return
	}

	if metrics.AgentID == "" {
		metrics.AgentID = wsc.agentID
	}

	select {
	case wsc.sendChannel <- metrics:
	default:
		wsc.log.Warn("metrics send channel full, dropping window", zap.String("scope", metrics.Scope))
	}
}

// Forward relays window summaries from the aggregator until in is closed or
// the client is disconnected
func (wsc *WebSocketClient) Forward(in <-chan *WindowMetrics) {
	for {
		select {
		case <-wsc.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			wsc.SendMetrics(m)
		}
	}
}

// readPump drains server acknowledgements so pongs get processed
func (wsc *WebSocketClient) readPump(conn *websocket.Conn) {
	defer wsc.markClosed(conn)

	for {
		select {
		case <-wsc.done:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(wsc.pongWait))
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wsc.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

// writePump handles outgoing messages to the WebSocket server
func (wsc *WebSocketClient) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(wsc.pingPeriod)
	defer func() {
		ticker.Stop()
		wsc.markClosed(conn)
	}()

	for {
		select {
		case <-wsc.done:
			return
		case metrics := <-wsc.sendChannel:
			if err := wsc.writeMetrics(conn, metrics); err != nil {
				wsc.log.Warn("sending window failed", zap.Error(err))
				return
			}
		case ack := <-wsc.flushRequests:
			err := wsc.drain(conn)
			ack <- err
			if err != nil {
				wsc.log.Warn("flushing windows failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsc.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain writes every queued window
func (wsc *WebSocketClient) drain(conn *websocket.Conn) error {
	for {
		select {
		case metrics := <-wsc.sendChannel:
			if err := wsc.writeMetrics(conn, metrics); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// Flush blocks until every queued window has been written to the server or
// timeout expires
func (wsc *WebSocketClient) Flush(timeout time.Duration) error {
	if !wsc.IsConnected() {
		return errNotConnected
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ack := make(chan error, 1)
	select {
	case wsc.flushRequests <- ack:
	case <-wsc.done:
		return errClientClosed
	case <-timer.C:
		return fmt.Errorf("flush: no writer after %s", timeout)
	}
	select {
	case err := <-ack:
		return err
	case <-timer.C:
		return fmt.Errorf("flush: timed out after %s", timeout)
	}
}

func (wsc *WebSocketClient) markClosed(conn *websocket.Conn) {
	wsc.mutex.Lock()
	defer wsc.mutex.Unlock()
	conn.Close()
	if wsc.conn == conn {
		wsc.connected = false
	}
}

// writeMetrics serializes and sends a metrics message
func (wsc *WebSocketClient) writeMetrics(conn *websocket.Conn, metrics *WindowMetrics) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(wsc.writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// StartReconnectLoop redials in the background whenever the connection drops
func (wsc *WebSocketClient) StartReconnectLoop() {
	go func() {
		ticker := time.NewTicker(wsc.reconnectDelay)
		defer ticker.Stop()
		for {
			select {
			case <-wsc.done:
				return
			case <-ticker.C:
			}

			if wsc.IsConnected() {
				continue
			}
			if err := wsc.Connect(); err != nil {
				wsc.log.Warn("reconnect failed", zap.Error(err))
			}
		}
	}()
}
