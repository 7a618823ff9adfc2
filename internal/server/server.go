// Package server exposes a small read-only status API over HTTP.
package server

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/stmtc233/BilibiliLiveRecorder/internal/recorder"
)

type StatusServer struct {
	*fiber.App
	manager        *recorder.Manager
	rooms          []string
	encoderVersion string
	startedAt      time.Time
}

func New(manager *recorder.Manager, rooms []string, encoderVersion string) *StatusServer {
	app := fiber.New(fiber.Config{
		ServerHeader:          "liverec",
		AppName:               "liverec",
		DisableStartupMessage: true,
	})

	s := &StatusServer{
		App:            app,
		manager:        manager,
		rooms:          rooms,
		encoderVersion: encoderVersion,
		startedAt:      time.Now(),
	}
	s.registerRoutes()
	return s
}
