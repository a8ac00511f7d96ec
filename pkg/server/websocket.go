package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antibyte/espresso/pkg/auth"
	"github.com/antibyte/espresso/pkg/configuration"
	"github.com/antibyte/espresso/pkg/logger"
	"github.com/antibyte/espresso/pkg/shared"
)

// inputQueueSize bounds input typed ahead of a prompt.
const inputQueueSize = 16

var errClientGone = errors.New("client disconnected")

func getWriteWait() time.Duration {
	return configuration.GetDuration("Server", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Server", "pong_timeout", 60*time.Second)
}

// getPingPeriod must stay below the pong wait or idle clients time out.
func getPingPeriod() time.Duration {
	pongWait := getPongWait()
	period := configuration.GetDuration("Server", "ping_interval", (pongWait*9)/10)
	if period <= 0 || period >= pongWait {
		period = (pongWait * 9) / 10
	}
	return period
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Server", "max_message_size_kb", 64) * 1024)
}

// runContext bounds a run by [Server] max_run_time; zero means no limit.
// Time spent waiting for input counts.
func runContext() (context.Context, context.CancelFunc) {
	if limit := configuration.GetDuration("Server", "max_run_time", 10*time.Minute); limit > 0 {
		return context.WithTimeout(context.Background(), limit)
	}
	return context.WithCancel(context.Background())
}

// Client is one websocket connection. It runs at most one program at a time.
type Client struct {
	id        string
	sessionID string
	ipAddress string
	conn      *websocket.Conn
	server    *Server

	writeMu sync.Mutex
	inputs  chan string

	runMu     sync.Mutex
	cancelRun context.CancelFunc

	shutdown  chan struct{}
	closeOnce sync.Once
}

func newClient(s *Server, conn *websocket.Conn, sessionID, ipAddress string) *Client {
	return &Client{
		id:        uuid.NewString(),
		sessionID: sessionID,
		ipAddress: ipAddress,
		conn:      conn,
		server:    s,
		inputs:    make(chan string, inputQueueSize),
		shutdown:  make(chan struct{}),
	}
}

// Send writes msg to the connection. Writes are serialized.
func (c *Client) Send(msg shared.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-c.shutdown:
		return errClientGone
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write to %s: %w", c.ipAddress, err)
	}
	return nil
}

func (c *Client) status(format string, args ...interface{}) {
	if err := c.Send(shared.Message{Type: shared.MessageTypeStatus, Content: fmt.Sprintf(format, args...)}); err != nil {
		logger.WebSocketDebug("client %s: status not delivered: %v", c.id, err)
	}
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WebSocketWarn("client %s: unexpected close: %v", c.id, err)
			}
			return
		}

		msg, err := c.server.validator.Decode(data)
		if err != nil {
			logger.WebSocketWarn("client %s: rejected message: %v", c.id, err)
			c.status("rejected message: %v", err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(getPingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(getWriteWait()))
			c.writeMu.Unlock()
			if err != nil {
				logger.WebSocketDebug("client %s: ping failed: %v", c.id, err)
				c.close()
				return
			}
		case <-c.shutdown:
			return
		}
	}
}

func (c *Client) handleMessage(msg *shared.Message) {
	switch msg.Type {
	case shared.MessageTypeRun:
		c.startRun(msg)
	case shared.MessageTypeInput:
		select {
		case c.inputs <- msg.Content:
		default:
			c.status("input queue full, value %q dropped", msg.Content)
		}
	case shared.MessageTypeCancel:
		if !c.cancelActiveRun() {
			c.status("no program running")
		}
	}
}

func (c *Client) startRun(msg *shared.Message) {
	c.runMu.Lock()
	if c.cancelRun != nil {
		c.runMu.Unlock()
		c.status("busy: a program is already running")
		return
	}

	name, lines, err := c.server.resolveProgram(msg)
	if err != nil {
		c.runMu.Unlock()
		logger.Warn(logger.AreaServer, "client %s: cannot run: %v", c.id, err)
		c.Send(shared.Message{Type: shared.MessageTypeError, Content: "Error: " + err.Error()})
		c.Send(shared.Message{Type: shared.MessageTypeDone, Content: "Done."})
		return
	}

	// input typed before this run belongs to no prompt of it
	for drained := false; !drained; {
		select {
		case <-c.inputs:
		default:
			drained = true
		}
	}

	ctx, cancel := runContext()
	c.cancelRun = cancel
	c.runMu.Unlock()

	go func() {
		runID, runErr := c.server.execute(ctx, c, name, lines)

		// the next run may start as soon as the client sees "done"
		c.runMu.Lock()
		c.cancelRun = nil
		c.runMu.Unlock()
		cancel()

		c.server.report(c, runID, runErr)
	}()
}

// cancelActiveRun stops the running program, if any.
func (c *Client) cancelActiveRun() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancelRun == nil {
		return false
	}
	c.cancelRun()
	return true
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.shutdown)
		c.cancelActiveRun()
		c.conn.Close()
		c.server.clients.RemoveClient(c.id)
		logger.WebSocketInfo("client %s (%s) disconnected", c.id, c.ipAddress)
	})
}

// HandleWebSocket upgrades an authenticated request to a script console.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ipAddress := getClientIP(r)

	if s.clients.Full() {
		logger.SecurityWarn("connection from %s refused: server full", ipAddress)
		http.Error(w, "Server overloaded", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WebSocketError("upgrade failed for %s: %v", ipAddress, err)
		return
	}

	client := newClient(s, conn, auth.SessionIDFromContext(r.Context()), ipAddress)
	if err := s.clients.AddClient(client); err != nil {
		logger.SecurityWarn("connection from %s refused: %v", ipAddress, err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(getWriteWait()))
		conn.Close()
		return
	}
	logger.WebSocketInfo("client %s connected from %s (session %s)", client.id, ipAddress, client.sessionID)

	client.status("connected")
	go client.pingLoop()
	go client.readPump()
}
