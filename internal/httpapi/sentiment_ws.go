package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jsadleir/callscope/internal/eventlog"
	"github.com/jsadleir/callscope/internal/store"
	"github.com/jsadleir/callscope/internal/stream"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// closeUnauthorized is the close code sent when the ?token= query param is
// missing or invalid.
const closeUnauthorized = 4001

// streamSession is one live sentiment stream connection.
type streamSession struct {
	callID   string
	username string

	conn   *websocket.Conn
	connMu sync.Mutex

	streamer *stream.Streamer
	registry *stream.Registry
	eventLog *eventlog.Logger
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// handleSentimentWS upgrades the connection and streams simulated sentiment
// updates for one call until the client disconnects.
func (r *Router) handleSentimentWS(w http.ResponseWriter, req *http.Request) {
	callID := req.PathValue("callID")

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("sentiment_ws: upgrade failed: %v", err)
		return
	}

	// Browsers cannot set headers on websocket requests, so the JWT rides
	// in the query string.
	claims, err := r.parseToken(req.URL.Query().Get("token"))
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeUnauthorized, "invalid or missing token"), wsDeadline())
		conn.Close()
		return
	}

	if !r.sessions.Add(callID) {
		r.logger.Printf("sentiment_ws: rejecting connection for call %s, draining", callID)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server draining"), wsDeadline())
		conn.Close()
		return
	}
	defer r.sessions.Done(callID)

	ctx, cancel := context.WithCancel(req.Context())
	session := &streamSession{
		callID:   callID,
		username: claims.Username,
		conn:     conn,
		streamer: r.streamer,
		registry: r.registry,
		eventLog: r.eventLog,
		logger:   r.logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	defer session.cleanup()

	go session.closeOnDone()

	if _, err := r.calls.GetCall(ctx, callID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			session.send(stream.ErrorMessage("call not found"))
		} else {
			r.logger.Printf("sentiment_ws: call lookup for %s failed: %v", callID, err)
			session.send(stream.ErrorMessage("call lookup failed"))
		}
		return
	}

	session.send(stream.ConnectionEstablishedMessage(callID))

	if r.streamer.Start(callID) {
		r.eventLog.LogAsync(callID, eventlog.EventStreamStarted, map[string]any{
			"started_by": claims.Username,
		})
	}

	listener := stream.NewListener()
	r.registry.Register(callID, listener)
	r.eventLog.LogAsync(callID, eventlog.EventListenerAttached, map[string]any{
		"username": claims.Username,
	})

	// Late joiners get the accumulated history before live updates. The
	// listener is registered before the snapshot is taken, so a sample
	// emitted in between appears both in the history and as a live update.
	// Attach delivery is at-least-once; clients key on the timestamp.
	if history := r.streamer.History(callID); len(history) > 0 {
		session.send(stream.HistoryMessage(history))
	}

	go session.writePump(listener)
	session.readLoop()

	r.registry.Unregister(callID, listener)
	r.eventLog.LogAsync(callID, eventlog.EventListenerDetached, map[string]any{
		"username": claims.Username,
	})
	if r.registry.ListenerCount(callID) == 0 {
		r.streamer.Stop(callID)
		r.eventLog.LogAsync(callID, eventlog.EventStreamStopped, nil)
	}
}

// closeOnDone closes the socket once the session context ends. Without it a
// listener dropped for falling behind would cancel the context while readLoop
// stayed blocked in ReadMessage, pinning the drain slot until the client went
// away on its own.
func (s *streamSession) closeOnDone() {
	<-s.ctx.Done()
	s.conn.Close()
}

// writePump forwards broadcast frames to the connection. The registry closes
// the listener channel on unregister or slow-consumer drop, ending the loop.
func (s *streamSession) writePump(listener stream.Listener) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-listener:
			if !ok {
				s.cancel()
				return
			}
			s.writeRaw(frame)
		}
	}
}

func (s *streamSession) readLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("sentiment_ws: connection closed for call %s", s.callID)
			} else {
				s.logger.Printf("sentiment_ws: read error for call %s: %v", s.callID, err)
			}
			return
		}

		var cmd stream.Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			s.send(stream.ErrorMessage("invalid command"))
			continue
		}

		switch cmd.Type {
		case stream.CommandPing:
			s.send(stream.PongMessage())

		case stream.CommandGetHistory:
			s.send(stream.HistoryMessage(s.streamer.History(s.callID)))

		case stream.CommandStopStreaming:
			s.streamer.Stop(s.callID)
			s.eventLog.LogAsync(s.callID, eventlog.EventStreamStopped, map[string]any{
				"stopped_by": s.username,
			})
			s.send(stream.StoppedMessage())

		default:
			s.send(stream.ErrorMessage("unknown command: " + cmd.Type))
		}
	}
}

// send marshals and writes one envelope. Write errors are logged, not fatal;
// the read loop notices the broken connection and exits.
func (s *streamSession) send(env stream.Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		s.logger.Printf("sentiment_ws: marshal failed: %v", err)
		return
	}
	s.writeRaw(frame)
}

func (s *streamSession) writeRaw(frame []byte) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.logger.Printf("sentiment_ws: write failed for call %s: %v", s.callID, err)
	}
}

func (s *streamSession) cleanup() {
	s.cancel()
	s.conn.Close()
}

func wsDeadline() time.Time {
	return time.Now().Add(time.Second)
}
