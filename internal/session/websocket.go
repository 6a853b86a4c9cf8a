package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Settings tune the WebSocket transport.
type Settings struct {
	WriteTimeout time.Duration
	// ReadTimeout is extended by every message and pong; PingInterval must
	// be shorter so an idle but healthy client is never dropped.
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	SendBuffer      int
}

// DefaultSettings returns the transport defaults.
func DefaultSettings() *Settings {
	return &Settings{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    25 * time.Second,
		MaxMessageBytes: 1 << 20,
		SendBuffer:      64,
	}
}

// Serve runs s over an upgraded connection until either side ends it. The
// reader turns frames into commands, the writer is the only goroutine that
// writes to ws, and the session loop sits between them.
func Serve(ctx context.Context, ws *websocket.Conn, s *Session, settings *Settings) {
	handleCtx, handleCancel := context.WithCancel(ctx)
	defer handleCancel()

	commands := make(chan Command)
	out := make(chan Message, settings.SendBuffer)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer handleCancel()
		s.Run(handleCtx, commands, out)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer handleCancel()
		writeLoop(handleCtx, ws, out, settings, s)
	}()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer handleCancel()
		readLoop(handleCtx, ws, commands, out, settings, s)
	}()

	<-handleCtx.Done()
	<-runDone
	<-writerDone
	// Unblocks a reader waiting on the network
	ws.Close()
	<-readerDone
}

func writeLoop(ctx context.Context, ws *websocket.Conn, out <-chan Message, settings *Settings, s *Session) {
	ticker := time.NewTicker(settings.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(settings.WriteTimeout))
			return
		case msg := <-out:
			ws.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
			if err := ws.WriteJSON(msg); err != nil {
				// a websocket write deadline cannot be recovered
				s.logger.Info("session write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(settings.WriteTimeout)); err != nil {
				s.logger.Info("session ping failed", "error", err)
				return
			}
		}
	}
}

func readLoop(ctx context.Context, ws *websocket.Conn, commands chan<- Command, out chan<- Message, settings *Settings, s *Session) {
	ws.SetReadLimit(settings.MaxMessageBytes)
	ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("session read failed", "error", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))

		if messageType != websocket.TextMessage {
			continue
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type == "" {
			reply := Message{Type: MsgError, Data: ErrorPayload{
				Status:  http.StatusBadRequest,
				Message: "malformed command",
			}}
			select {
			case out <- reply:
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case commands <- cmd:
		case <-ctx.Done():
			return
		}
	}
}
