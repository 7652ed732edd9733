package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-visionapp/pkg/camera"
	"github.com/teslashibe/go-visionapp/pkg/pipeline"
)

const healthTimeout = 3 * time.Second

// handleTrigger is the tap on the preview.
func (s *Server) handleTrigger(c *fiber.Ctx) error {
	err := s.ctrl.Trigger(c.UserContext())
	switch {
	case err == nil:
		return c.Status(fiber.StatusAccepted).JSON(s.ctrl.State())
	case errors.Is(err, pipeline.ErrBusy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, pipeline.ErrNoSession), errors.Is(err, pipeline.ErrStopped):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The request went away. The loop may still have started a cycle.
		s.logger.Debug("trigger request ended before reply", "error", err)
		return c.Status(fiber.StatusRequestTimeout).JSON(fiber.Map{"error": err.Error()})
	default:
		s.logger.Error("trigger failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// handleFlash is the flash button.
func (s *Server) handleFlash(c *fiber.Ctx) error {
	mode, err := s.ctrl.ToggleFlash(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"flash": mode.String(),
		"label": pipeline.FlashLabel(mode),
	})
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.State())
}

// handleImage returns the last captured photo.
func (s *Server) handleImage(c *fiber.Ctx) error {
	img := s.ctrl.Image()
	if len(img) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no image captured yet"})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(img)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.cameras == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera settings not available"})
	}
	return c.JSON(fiber.Map{
		"config":       s.cameras.GetConfigJSON(),
		"capabilities": camera.Capabilities(),
	})
}

// handleUpdateCamera applies a partial config or a {"preset": name}.
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.cameras == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera settings not available"})
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if err := s.cameras.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	s.logger.Info("camera config updated", "params", params)
	return c.JSON(fiber.Map{"config": s.cameras.GetConfigJSON()})
}

func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}

// handleHealth runs every registered check concurrently.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	s.healthMu.RLock()
	checks := make(map[string]HealthFunc, len(s.health))
	for name, fn := range s.health {
		checks[name] = fn
	}
	s.healthMu.RUnlock()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(checks))
	for name, fn := range checks {
		go func(name string, fn HealthFunc) {
			results <- result{name: name, err: fn(ctx)}
		}(name, fn)
	}

	healthy := s.ctrl.SessionActive()
	report := make(map[string]string, len(checks)+1)
	report["session"] = "ok"
	if !healthy {
		report["session"] = pipeline.ErrNoSession.Error()
	}
	for range checks {
		r := <-results
		if r.err != nil {
			healthy = false
			report[r.name] = r.err.Error()
			continue
		}
		report[r.name] = "ok"
	}

	status := "ok"
	code := fiber.StatusOK
	if !healthy {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": report,
	})
}
