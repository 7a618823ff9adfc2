package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

func (s *StatusServer) registerRoutes() {
	s.Get("/healthz", s.handleHealth)
	s.Get("/sessions", s.handleSessions)
	s.Get("/rooms", s.handleRooms)
}

func (s *StatusServer) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"encoder":        s.encoderVersion,
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
	})
}

func (s *StatusServer) handleSessions(c *fiber.Ctx) error {
	return c.JSON(s.manager.Sessions())
}

type roomStatus struct {
	RoomID    string `json:"room_id"`
	Recording bool   `json:"recording"`
}

func (s *StatusServer) handleRooms(c *fiber.Ctx) error {
	statuses := make([]roomStatus, 0, len(s.rooms))
	for _, roomID := range s.rooms {
		statuses = append(statuses, roomStatus{
			RoomID:    roomID,
			Recording: s.manager.IsRecording(roomID),
		})
	}
	return c.JSON(statuses)
}
