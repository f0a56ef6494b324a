package httpapi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/scout/internal/globaltime"
	"horse.fit/scout/internal/resilience"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	defaultListHours = 24
	maxListHours     = 24 * 30
)

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check database ping failed")
		return failUnavailable(c, "Database unreachable")
	}
	return success(c, map[string]any{
		"service": "scout",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleSpikes(c echo.Context) error {
	hours, limit, fieldErrors := parseListParams(c)
	if fieldErrors != nil {
		return failValidation(c, fieldErrors)
	}

	since := globaltime.UTC().Add(-time.Duration(hours) * time.Hour)
	events, err := s.store.SpikeEventsSince(c.Request().Context(), since, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query spike events failed")
		return internalError(c, "Failed to load spike events")
	}
	return success(c, map[string]any{
		"items": events,
		"hours": hours,
		"limit": limit,
	})
}

func (s *Server) handleReports(c echo.Context) error {
	hours, limit, fieldErrors := parseListParams(c)
	if fieldErrors != nil {
		return failValidation(c, fieldErrors)
	}

	since := globaltime.UTC().Add(-time.Duration(hours) * time.Hour)
	reports, err := s.store.ReportsSince(c.Request().Context(), since, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query reports failed")
		return internalError(c, "Failed to load reports")
	}
	return success(c, map[string]any{
		"items": reports,
		"hours": hours,
		"limit": limit,
	})
}

func (s *Server) handleEnrichRun(c echo.Context) error {
	drained, err := s.runner.RunEnrich(c.Request().Context())
	if err != nil {
		return s.runError(c, "enrichment", err)
	}
	return success(c, map[string]any{"events_processed": drained})
}

func (s *Server) handleDetectRun(c echo.Context) error {
	detected, err := s.runner.RunDetect(c.Request().Context())
	if err != nil {
		return s.runError(c, "detection", err)
	}
	return success(c, map[string]any{"spikes_detected": detected})
}

func (s *Server) handleDigestRun(c echo.Context) error {
	digest, err := s.runner.RunDigest(c.Request().Context())
	if err != nil {
		return s.runError(c, "digest", err)
	}
	return success(c, map[string]any{
		"digest":   digest,
		"markdown": digest.Markdown(),
	})
}

// runError maps an open circuit breaker to 503 so operators can tell
// upstream throttling from genuine failures.
func (s *Server) runError(c echo.Context, job string, err error) error {
	if errors.Is(err, resilience.ErrUnavailable) {
		return failUnavailable(c, fmt.Sprintf("Upstream circuit open, %s paused", job))
	}
	s.logger.Error().Err(err).Str("job", job).Msg("manual run failed")
	return internalError(c, fmt.Sprintf("Failed to run %s", job))
}

func parseListParams(c echo.Context) (hours, limit int, fieldErrors map[string]string) {
	var err error
	hours, err = parsePositiveInt(c.QueryParam("hours"), defaultListHours, 1, maxListHours)
	if err != nil {
		return 0, 0, map[string]string{"hours": err.Error()}
	}
	limit, err = parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return 0, 0, map[string]string{"limit": err.Error()}
	}
	return hours, limit, nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
