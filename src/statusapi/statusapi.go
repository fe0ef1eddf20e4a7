// Package statusapi serves a local read-mostly view of the client: the
// connection state, peers in the room, the local timer and metrics.
package statusapi

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/seika-app/pomosync/src/types"
)

// Connection exposes the connection state.
type Connection interface {
	State() types.ConnectionState
}

// Room exposes peers and forced syncs.
type Room interface {
	Peers() []types.PeerSnapshot
	SyncTimerState(extra map[string]any) bool
}

// Timer exposes the local timer.
type Timer interface {
	TimerData() types.TimerData
}

// Server is the status API.
type Server struct {
	app    *fiber.App
	conn   Connection
	room   Room
	timer  Timer
	logger zerolog.Logger
}

// New builds the routes. gatherer may be nil to omit /metrics.
func New(conn Connection, room Room, timer Timer, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		app:    fiber.New(fiber.Config{AppName: "pomosync"}),
		conn:   conn,
		room:   room,
		timer:  timer,
		logger: logger.With().Str("component", "statusapi").Logger(),
	}
	s.app.Get("/status", s.handleStatus)
	s.app.Get("/peers", s.handlePeers)
	s.app.Get("/timer", s.handleTimer)
	s.app.Post("/sync", s.handleSync)
	if gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("status api listening")
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleStatus(c fiber.Ctx) error {
	return c.JSON(s.conn.State())
}

func (s *Server) handlePeers(c fiber.Ctx) error {
	peers := s.room.Peers()
	return c.JSON(fiber.Map{
		"count": len(peers),
		"peers": peers,
	})
}

func (s *Server) handleTimer(c fiber.Ctx) error {
	return c.JSON(s.timer.TimerData())
}

func (s *Server) handleSync(c fiber.Ctx) error {
	var extra map[string]any
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &extra); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "invalid_body",
				"message": "body must be a JSON object",
			})
		}
	}
	if !s.room.SyncTimerState(extra) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "no_room",
			"message": "join a room before syncing",
		})
	}
	return c.JSON(fiber.Map{"synced": true})
}
