package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/sentinel/internal/events"
)

// eventsStream upgrades /api/events/stream to a websocket and forwards
// every envelope the Reactions Bus dispatches, via events.Bus.Subscribe -
// an operator dashboard wants to see everything happening, not just what
// has a reaction wired.
type eventsStream struct {
	bus *events.Bus
	log zerolog.Logger
}

func newEventsStream(bus *events.Bus, log zerolog.Logger) *eventsStream {
	return &eventsStream{bus: bus, log: log.With().Str("handler", "events_stream").Logger()}
}

// pingInterval keeps idle connections (and any intermediate proxy) alive;
// nhooyr.io/websocket has no built-in heartbeat of its own.
const pingInterval = 30 * time.Second

func (s *eventsStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to accept websocket connection")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := conn.CloseRead(r.Context())

	ch, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case envelope := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, envelope)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("failed to write event to websocket, closing")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
