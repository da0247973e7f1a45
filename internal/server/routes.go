package server

import (
	"errors"
	"net/http"
	"time"

	"beamctl/internal/core/domain"
	"beamctl/internal/store"

	"beamctl/pkg/projector"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	e.GET("/profiles", s.ListProfilesHandler)

	e.GET("/devices", s.ListDevicesHandler)
	e.POST("/devices", s.AddDeviceHandler)
	e.DELETE("/devices/:id", s.RemoveDeviceHandler)

	e.POST("/devices/:id/commands/:name", s.ExecuteCommandHandler)
	e.GET("/devices/:id/state", s.QueryStateHandler)
	e.POST("/devices/:id/power", s.SetPowerHandler)
	e.POST("/devices/:id/source", s.SetSourceHandler)
	e.DELETE("/devices/:id/source", s.CancelSetSourceHandler)

	e.POST("/discovery/scan", s.StartScanHandler)
	e.DELETE("/discovery/scan", s.AbortScanHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ListProfilesHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.ListProfilesRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.ListProfilesResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errUnexpectedResponse))
	}
	return c.JSON(http.StatusOK, map[string]any{"profiles": response.Types})
}

func (s *Server) ListDevicesHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.ListDevicesRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.ListDevicesResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errUnexpectedResponse))
	}
	devices := response.Devices
	if devices == nil {
		devices = []domain.DeviceInstance{}
	}
	return c.JSON(http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) AddDeviceHandler(c echo.Context) error {
	var device domain.DeviceInstance
	if err := c.Bind(&device); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}
	if device.Name == "" || device.IP == "" || device.ProfileType == "" {
		return c.JSON(http.StatusBadRequest, errorBody(errors.New("name, ip and type are required")))
	}
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.AddDeviceRequest{Device: device}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.AddDeviceResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errUnexpectedResponse))
	}
	if response.HasResponseError() {
		return c.JSON(errorStatus(response.GetResponseError()), errorBody(response.GetResponseError()))
	}
	return c.JSON(http.StatusCreated, response.Device)
}

func (s *Server) RemoveDeviceHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.RemoveDeviceRequest{ID: c.Param("id")}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.RemoveDeviceResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errUnexpectedResponse))
	}
	if response.HasResponseError() {
		return c.JSON(errorStatus(response.GetResponseError()), errorBody(response.GetResponseError()))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ExecuteCommandHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.ExecuteCommandRequest{
		DeviceRequestMixIn: domain.DeviceRequestMixIn{Device: c.Param("id")},
		Command:            c.Param("name"),
	}, 30*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	return s.commandResponse(c, res)
}

func (s *Server) QueryStateHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.QueryStateRequest{
		DeviceRequestMixIn: domain.DeviceRequestMixIn{Device: c.Param("id")},
	}, 30*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	if errResp := asErrorResponse(res); errResp != nil {
		return c.JSON(errorStatus(errResp), errorBody(errResp))
	}
	response, ok := res.(domain.QueryStateResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errUnexpectedResponse))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"device":       response.Device,
		"power":        string(response.Power),
		"source":       response.Source,
		"source_known": response.SourceKnown,
	})
}

func (s *Server) SetPowerHandler(c echo.Context) error {
	var body struct {
		On bool `json:"on"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.SetPowerRequest{
		DeviceRequestMixIn: domain.DeviceRequestMixIn{Device: c.Param("id")},
		On:                 body.On,
	}, 30*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	return s.commandResponse(c, res)
}

// SetSourceHandler blocks for the whole source cycle, which can take a
// while on a projector that only has a cycle key.
func (s *Server) SetSourceHandler(c echo.Context) error {
	var body struct {
		Source string `json:"source"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}
	if body.Source == "" {
		return c.JSON(http.StatusBadRequest, errorBody(errors.New("source is required")))
	}
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.SetSourceRequest{
		DeviceRequestMixIn: domain.DeviceRequestMixIn{Device: c.Param("id")},
		Source:             body.Source,
	}, 120*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	if errResp := asErrorResponse(res); errResp != nil {
		return c.JSON(errorStatus(errResp), errorBody(errResp))
	}
	response, ok := res.(domain.SetSourceResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errUnexpectedResponse))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"device":      response.Device,
		"converged":   response.Converged,
		"steps_taken": response.StepsTaken,
		"last_source": response.LastSource,
	})
}

func (s *Server) CancelSetSourceHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.CancelSetSourceRequest{
		DeviceRequestMixIn: domain.DeviceRequestMixIn{Device: c.Param("id")},
	}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	if errResp := asErrorResponse(res); errResp != nil {
		return c.JSON(errorStatus(errResp), errorBody(errResp))
	}
	response, ok := res.(domain.CancelSetSourceResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errUnexpectedResponse))
	}
	return c.JSON(http.StatusOK, map[string]any{"cancelled": response.Cancelled})
}

// StartScanHandler blocks until the sweep finishes and returns the grouped
// candidates.
func (s *Server) StartScanHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.StartScanRequest{}, 300*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.ScanReportResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errUnexpectedResponse))
	}
	resolved := response.Report.Resolved
	if resolved == nil {
		resolved = []projector.Candidate{}
	}
	unauthorized := response.Report.Unauthorized
	if unauthorized == nil {
		unauthorized = []projector.Candidate{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"resolved":     resolved,
		"unauthorized": unauthorized,
	})
}

func (s *Server) AbortScanHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.fleetActor, domain.AbortScanRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.AbortScanResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errUnexpectedResponse))
	}
	return c.JSON(http.StatusOK, map[string]any{"aborted": response.Aborted})
}

func (s *Server) commandResponse(c echo.Context, res any) error {
	if errResp := asErrorResponse(res); errResp != nil {
		return c.JSON(errorStatus(errResp), errorBody(errResp))
	}
	response, ok := res.(domain.ExecuteCommandResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errUnexpectedResponse))
	}
	status := http.StatusOK
	if !response.OK {
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]any{
		"device":  response.Device,
		"command": response.Command,
		"ok":      response.OK,
	})
}

var errUnexpectedResponse = errors.New("unexpected actor response")

// asErrorResponse extracts a failed actor response, whatever its concrete
// type.
func asErrorResponse(res any) error {
	if response, ok := res.(domain.ActorResponse); ok && response.HasResponseError() {
		return response.GetResponseError()
	}
	return nil
}

func errorStatus(err error) int {
	var unknownCmd *projector.UnknownCommandError
	var unknownProfile *projector.UnknownProfileError
	switch {
	case errors.Is(err, domain.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateDevice):
		return http.StatusConflict
	case errors.As(err, &unknownCmd), errors.As(err, &unknownProfile):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func errorBody(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
