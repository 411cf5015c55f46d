package web

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-mindwell/internal/metrics"
	"github.com/teslashibe/go-mindwell/pkg/hubspot"
	"github.com/teslashibe/go-mindwell/pkg/inference"
	"github.com/teslashibe/go-mindwell/pkg/insight"
	"github.com/teslashibe/go-mindwell/pkg/tts"
)

// httpError is an error with the status it should be served with.
type httpError struct {
	status  int
	message string
	cause   error
}

func (e *httpError) Error() string { return e.message }
func (e *httpError) Unwrap() error { return e.cause }

var (
	errBadBody     = &httpError{status: fiber.StatusBadRequest, message: "invalid request body"}
	errRateLimited = &httpError{status: fiber.StatusTooManyRequests, message: "rate limit exceeded"}
)

func badRequest(msg string) error {
	return &httpError{status: fiber.StatusBadRequest, message: msg}
}

func errUnavailable(feature string) error {
	return &httpError{status: fiber.StatusServiceUnavailable, message: feature + " not configured"}
}

// vendorError classifies err: caller mistakes become 400, everything else
// is a 502 from the named vendor.
func vendorError(vendor string, err error) error {
	if isInvalidInput(err) {
		return &httpError{status: fiber.StatusBadRequest, message: err.Error(), cause: err}
	}
	metrics.VendorErrorsTotal.WithLabelValues(vendor).Inc()
	return &httpError{status: fiber.StatusBadGateway, message: vendor + " request failed", cause: err}
}

func isInvalidInput(err error) bool {
	return inference.IsInvalidRequest(err) ||
		errors.Is(err, insight.ErrNoAnswers) ||
		errors.Is(err, insight.ErrTooManyAnswers) ||
		errors.Is(err, tts.ErrEmptyText) ||
		errors.Is(err, hubspot.ErrMissingEmail) ||
		errors.Is(err, hubspot.ErrInvalidEmail)
}

// errorHandler renders every handler error as {"error": "..."}.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "internal error"

	var he *httpError
	var fe *fiber.Error
	switch {
	case errors.As(err, &he):
		status, msg = he.status, he.message
		if he.cause != nil && status >= 500 {
			s.logger.Error("request failed",
				"path", c.Path(),
				"status", status,
				"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
				"error", he.cause,
			)
		}
	case errors.As(err, &fe):
		status, msg = fe.Code, fe.Message
	default:
		s.logger.Error("unhandled error", "path", c.Path(), "error", err)
	}

	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// instrument records request counts and latency per route.
func (s *Server) instrument(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		var he *httpError
		var fe *fiber.Error
		switch {
		case errors.As(err, &he):
			status = he.status
		case errors.As(err, &fe):
			status = fe.Code
		default:
			status = fiber.StatusInternalServerError
		}
	}
	route := c.Route().Path
	metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	metrics.APIRequestSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
	return err
}

// rateLimit rejects clients over budget. A limiter failure lets the
// request through.
func (s *Server) rateLimit(c *fiber.Ctx) error {
	if s.limiter == nil || c.Method() == fiber.MethodOptions {
		return c.Next()
	}
	ok, err := s.limiter.Allow(c.UserContext(), c.IP())
	if err != nil {
		s.logger.Warn("rate limiter unavailable", "error", err)
		return c.Next()
	}
	if !ok {
		metrics.RateLimitedTotal.Inc()
		return errRateLimited
	}
	return c.Next()
}
