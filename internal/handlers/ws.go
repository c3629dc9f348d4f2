package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/friendmap/backend/internal/logging"
	"github.com/friendmap/backend/internal/middleware"
	"github.com/friendmap/backend/internal/realtime"
)

const (
	maxFrameBytes          = 16 << 10
	maxDecodeErrorsPerConn = 5
	socketWriteTimeout     = 10 * time.Second
)

// LocationSocket upgrades GET /ws/location into a realtime session. The access
// token comes from the "token" query parameter or an Authorization header.
type LocationSocket struct {
	Sessions          SessionOpener
	AllowedOrigins    []string
	OutboxSize        int
	MessagesPerSecond float64
	Burst             int
}

// ServeHTTP implements http.Handler.
func (s LocationSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		respondError(r.Context(), w, http.StatusServiceUnavailable, "realtime is not configured")
		return
	}

	server := websocket.Server{
		Handshake: s.checkOrigin,
		Handler:   s.serve,
	}
	server.ServeHTTP(w, r)
}

func (s LocationSocket) checkOrigin(config *websocket.Config, r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.AllowedOrigins) == 0 || slices.Contains(s.AllowedOrigins, "*") {
		return nil
	}
	if !slices.Contains(s.AllowedOrigins, origin) {
		return fmt.Errorf("origin %q not allowed", origin)
	}
	parsed, err := websocket.Origin(config, r)
	if err != nil {
		return err
	}
	config.Origin = parsed
	return nil
}

func (s LocationSocket) serve(ws *websocket.Conn) {
	defer ws.Close()
	ws.MaxPayloadBytes = maxFrameBytes

	r := ws.Request()
	ctx, span := logging.StartSpan(r.Context(), "ws.connection")
	defer span.End()
	logger := logging.FromContext(ctx)

	outbox := realtime.NewOutbox(s.OutboxSize, func(event realtime.Event) error {
		return writeFrame(ws, event)
	}, logger)
	defer outbox.Close()

	// A displaced or saturated outbox ends the read loop by closing the socket.
	// The watcher runs for the whole session so a close during Open is seen;
	// a rejected handshake writes its own reply and closes on return.
	opened := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-outbox.Done():
		case <-stop:
			return
		}
		select {
		case <-opened:
			_ = ws.Close()
		case <-stop:
		}
	}()

	session := s.Sessions.NewSession(outbox)
	if err := session.Open(ctx, socketToken(r)); err != nil {
		logger.Warn("websocket authentication failed", "error", err)
		_ = writeFrame(ws, realtime.Event{Type: realtime.EventAck, Payload: realtime.ErrorReply{Error: "Unauthorized"}})
		return
	}
	defer session.Terminate(ctx)
	close(opened)

	logger = logger.With("userId", session.UserID())
	ctx = logging.WithLogger(ctx, logger)
	logger.Info("websocket connected")

	s.readLoop(ctx, ws, session, outbox)
	logger.Info("websocket disconnected")
}

func (s LocationSocket) readLoop(ctx context.Context, ws *websocket.Conn, session *realtime.Session, outbox *realtime.Outbox) {
	logger := logging.FromContext(ctx)
	limiter := s.limiter()
	decodeErrors := 0

	for {
		var raw []byte
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				outbox.Send(errorEvent("", "message too large"))
				continue
			}
			if !errors.Is(err, io.EOF) {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var msg realtime.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			decodeErrors++
			outbox.Send(errorEvent("", "invalid message"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				logger.Warn("closing websocket after repeated decode errors")
				return
			}
			continue
		}
		decodeErrors = 0

		if limiter != nil && !limiter.Allow() {
			outbox.Send(errorEvent(msg.RequestID, "rate limit exceeded"))
			continue
		}

		if !outbox.Send(session.Dispatch(ctx, msg)) {
			return
		}
	}
}

func (s LocationSocket) limiter() *rate.Limiter {
	if s.MessagesPerSecond <= 0 {
		return nil
	}
	burst := s.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.MessagesPerSecond), burst)
}

func socketToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	return middleware.BearerToken(r)
}

func writeFrame(ws *websocket.Conn, event realtime.Event) error {
	if err := ws.SetWriteDeadline(time.Now().Add(socketWriteTimeout)); err != nil {
		return err
	}
	return websocket.JSON.Send(ws, event)
}

func errorEvent(requestID, message string) realtime.Event {
	return realtime.Event{Type: realtime.EventAck, RequestID: requestID, Payload: realtime.ErrorReply{Error: message}}
}
