package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestLog holds information about an API request for logging
type RequestLog struct {
	Endpoint       string
	Method         string
	StopID         string
	ResponseTimeMs int
	ResponseStatus int
	IPAddress      string
	UserAgent      string
	Timestamp      time.Time
}

// RequestLogger writes one structured log line per request through logger.
// Server errors log at error level, client errors at warn.
func RequestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Run the app's error handler here so the logged status is the one sent
		if err := c.Next(); err != nil {
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		entry := RequestLog{
			Endpoint:       c.Path(),
			Method:         c.Method(),
			StopID:         c.Params("id"),
			ResponseTimeMs: int(time.Since(start).Milliseconds()),
			ResponseStatus: c.Response().StatusCode(),
			IPAddress:      c.IP(),
			UserAgent:      c.Get("User-Agent"),
			Timestamp:      start,
		}

		logRequest(logger, entry)
		return nil
	}
}

// DefaultRequestLogger logs through the global logger
func DefaultRequestLogger() fiber.Handler {
	return RequestLogger(log.Logger)
}

func logRequest(logger zerolog.Logger, entry RequestLog) {
	var event *zerolog.Event
	switch {
	case entry.ResponseStatus >= 500:
		event = logger.Error()
	case entry.ResponseStatus >= 400:
		event = logger.Warn()
	default:
		event = logger.Info()
	}

	event = event.
		Str("method", entry.Method).
		Str("endpoint", entry.Endpoint).
		Int("status", entry.ResponseStatus).
		Int("response_ms", entry.ResponseTimeMs).
		Str("ip", entry.IPAddress)
	if entry.StopID != "" {
		event = event.Str("stop", entry.StopID)
	}
	if entry.UserAgent != "" {
		event = event.Str("user_agent", entry.UserAgent)
	}
	event.Time("at", entry.Timestamp).Msg("Request")
}
