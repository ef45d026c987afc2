package app

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hanamilabs/discord-modmail/internal/domain"
	"github.com/hanamilabs/discord-modmail/internal/ports"
)

const defaultEventLimit = 50

// Gateway reports whether the chat gateway is connected.
type Gateway interface {
	Connected() bool
}

// Relay reports how many handlers are running or queued.
type Relay interface {
	InFlight() int
}

// HealthServer is a local, read-only status surface for operators.
type HealthServer struct {
	logger    *slog.Logger
	app       *fiber.App
	addr      string
	startedAt time.Time
	gateway   Gateway
	relay     Relay
	store     ports.TicketStore
	archive   ports.TicketArchive
}

type gatewayCheck struct {
	Connected bool `json:"connected"`
}

type healthResponse struct {
	Status        string       `json:"status"`
	UptimeSeconds int64        `json:"uptimeSeconds"`
	Gateway       gatewayCheck `json:"gateway"`
	OpenTickets   int          `json:"openTickets"`
	InFlight      int          `json:"inFlight"`
}

type ticketItem struct {
	UserID    string    `json:"userId"`
	ChannelID string    `json:"channelId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewHealthServer builds the status routes. archive may be nil, in which
// case the event route answers 404.
func NewHealthServer(addr string, logger *slog.Logger, gateway Gateway, relay Relay, store ports.TicketStore, archive ports.TicketArchive) *HealthServer {
	server := &HealthServer{
		logger:    logger,
		addr:      addr,
		startedAt: time.Now(),
		gateway:   gateway,
		relay:     relay,
		store:     store,
		archive:   archive,
	}

	server.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		ErrorHandler:          server.errorHandler,
	})
	server.app.Get("/health", server.healthHandler)
	server.app.Get("/tickets", server.ticketsHandler)
	server.app.Get("/tickets/:userId/events", server.ticketEventsHandler)
	return server
}

// App exposes the fiber app for in-process requests.
func (s *HealthServer) App() *fiber.App {
	return s.app
}

func (s *HealthServer) ListenAndServe() error {
	s.logger.Info("status server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

func (s *HealthServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *HealthServer) healthHandler(c *fiber.Ctx) error {
	res := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Gateway:       gatewayCheck{Connected: s.gateway != nil && s.gateway.Connected()},
		OpenTickets:   len(s.store.List()),
	}
	if s.relay != nil {
		res.InFlight = s.relay.InFlight()
	}
	if !res.Gateway.Connected {
		res.Status = "disconnected"
		return c.Status(fiber.StatusServiceUnavailable).JSON(res)
	}
	return c.JSON(res)
}

func (s *HealthServer) ticketsHandler(c *fiber.Ctx) error {
	tickets := s.store.List()
	items := make([]ticketItem, 0, len(tickets))
	for _, ticket := range tickets {
		items = append(items, ticketItem{UserID: ticket.UserID, ChannelID: ticket.ChannelID, CreatedAt: ticket.CreatedAt})
	}
	return c.JSON(fiber.Map{"tickets": items})
}

func (s *HealthServer) ticketEventsHandler(c *fiber.Ctx) error {
	if s.archive == nil {
		return fiber.NewError(fiber.StatusNotFound, "ticket archive disabled")
	}
	userID := c.Params("userId")
	if _, err := strconv.ParseUint(userID, 10, 64); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "userId must be numeric")
	}
	limit := c.QueryInt("limit", defaultEventLimit)
	if limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()
	events, err := s.archive.ListEvents(ctx, userID, limit)
	if err != nil {
		return err
	}
	if events == nil {
		events = []domain.TicketEvent{}
	}
	return c.JSON(fiber.Map{"userId": userID, "events": events})
}

func (s *HealthServer) errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal error"
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
		message = fiberErr.Message
	} else {
		s.logger.Error("status request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}
