// Package httpapi exposes the sync operations over HTTP. Devices download
// offline-work bundles and push queued mutations; the actor and device ids
// travel in request headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/avolkov/seedtrack/internal/api"
	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/logging"
)

// BundleBuilder assembles an offline-work snapshot of a treatment.
type BundleBuilder interface {
	Build(ctx context.Context, treatmentID, deviceID string) (*api.Bundle, error)
}

// MutationApplier applies pushed mutations in order and reports one outcome
// per mutation.
type MutationApplier interface {
	Apply(ctx context.Context, actorID string, mutations []api.Mutation) ([]api.MutationOutcome, error)
}

type Server struct {
	echo    *echo.Echo
	bundles BundleBuilder
	push    MutationApplier
	logger  logging.Logger
}

func NewServer(bundles BundleBuilder, push MutationApplier, logger logging.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		bundles: bundles,
		push:    push,
		logger:  logger,
	}

	e.POST("/offline/download-bundle", s.downloadBundle)
	e.POST("/offline/push", s.pushMutations)
	e.GET("/healthz", s.healthz)
	return s
}

// Start blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying mux for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) downloadBundle(c echo.Context) error {
	var req api.DownloadBundleRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.TreatmentID == "" {
		return errorJSON(c, http.StatusBadRequest, "treatmentId is required")
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = c.Request().Header.Get(common.DeviceIDHeaderName)
	}

	bundle, err := s.bundles.Build(c.Request().Context(), req.TreatmentID, deviceID)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, api.DownloadBundleResponse{Bundle: *bundle})
}

func (s *Server) pushMutations(c echo.Context) error {
	actorID := c.Request().Header.Get(common.ActorIDHeaderName)
	if actorID == "" {
		return errorJSON(c, http.StatusBadRequest, "actor id header is required")
	}

	var req api.PushRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	outcomes, err := s.push.Apply(c.Request().Context(), actorID, req.Mutations)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, api.PushResponse{Outcomes: outcomes})
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrTreatmentVoided):
		return errorJSON(c, http.StatusGone, err.Error())
	case errors.Is(err, common.ErrVersionConflict):
		return errorJSON(c, http.StatusConflict, err.Error())
	default:
		s.logger.Error(c.Request().Context(), "request failed",
			"path", c.Path(), "error", err.Error())
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}
