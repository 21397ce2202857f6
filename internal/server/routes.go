package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/events"
	"github.com/berfenger/statesync2mqtt/internal/util/actorutil"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestTimeout = 10 * time.Second

type integrationView struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Kind     string `json:"kind"`
	Unloaded bool   `json:"unloaded"`
}

type sensorView struct {
	EntityId    string            `json:"entity_id"`
	UniqueId    string            `json:"unique_id"`
	Name        string            `json:"name"`
	SensorType  string            `json:"sensor_type"`
	Value       any               `json:"value"`
	Unit        string            `json:"unit,omitempty"`
	DeviceClass string            `json:"device_class,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Stale       bool              `json:"stale"`
}

type sensorsView struct {
	Integration integrationView `json:"integration"`
	State       string          `json:"state"`
	Connected   bool            `json:"connected"`
	Sensors     []sensorView    `json:"sensors"`
}

type deviceView struct {
	Integration  string    `json:"integration"`
	DeviceId     string    `json:"device_id"`
	Name         string    `json:"name"`
	Manufacturer string    `json:"manufacturer"`
	Model        string    `json:"model"`
	Version      string    `json:"sw_version"`
	RegisteredAt time.Time `json:"registered_at"`
}

type lifecycleView struct {
	Integration string `json:"integration"`
	Ok          bool   `json:"ok"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")
	api.GET("/integrations", s.ListIntegrationsHandler)
	api.GET("/integrations/:name/sensors", s.SensorsHandler)
	api.POST("/integrations/:name/setup", s.SetupHandler)
	api.POST("/integrations/:name/unload", s.UnloadHandler)
	if s.devices != nil {
		api.GET("/devices", s.DevicesHandler)
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	response, err := actorutil.RequestResult[domain.ActorHealthResponse](s.rootContext, s.masterActor, domain.ActorHealthRequest{}, requestTimeout)
	if err == nil && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ListIntegrationsHandler(c echo.Context) error {
	response, err := actorutil.RequestResult[domain.ListIntegrationsResponse](s.rootContext, s.masterActor, domain.ListIntegrationsRequest{}, requestTimeout)
	if err != nil {
		return actorError(err)
	}
	out := make([]integrationView, 0, len(response.Integrations))
	for _, status := range response.Integrations {
		view := toIntegrationView(status.Instance)
		view.Unloaded = status.Unloaded
		out = append(out, view)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) SensorsHandler(c echo.Context) error {
	response, err := actorutil.RequestResult[domain.GetReadingsResponse](s.rootContext, s.masterActor, domain.GetReadingsRequest{Name: c.Param("name")}, requestTimeout)
	if err == nil {
		err = response.GetResponseError()
	}
	if err != nil {
		return actorError(err)
	}
	out := sensorsView{
		Integration: toIntegrationView(response.Instance),
		State:       response.State,
		Connected:   response.Connected,
		Sensors:     make([]sensorView, 0, len(response.Readings)),
	}
	for _, p := range response.Readings {
		out.Sensors = append(out.Sensors, sensorView{
			EntityId:    events.EntityId(p.Identity),
			UniqueId:    p.Identity.UniqueId,
			Name:        p.Identity.DisplayName,
			SensorType:  p.Identity.SensorType,
			Value:       p.Reading.Value,
			Unit:        p.Reading.Unit,
			DeviceClass: string(p.Reading.DeviceClass),
			Attributes:  p.Reading.Attributes,
			Stale:       p.Reading.Stale,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) SetupHandler(c echo.Context) error {
	name := c.Param("name")
	response, err := actorutil.RequestResult[domain.SetupIntegrationResponse](s.rootContext, s.masterActor, domain.SetupIntegrationRequest{Name: name}, requestTimeout)
	if err != nil {
		return actorError(err)
	}
	// a failed setup carries its cause, only unknown names are client errors
	if errors.Is(response.GetResponseError(), domain.ErrUnknownIntegration) {
		return actorError(response.GetResponseError())
	}
	return lifecycleResult(c, name, response.Ok)
}

func (s *Server) UnloadHandler(c echo.Context) error {
	name := c.Param("name")
	response, err := actorutil.RequestResult[domain.UnloadIntegrationResponse](s.rootContext, s.masterActor, domain.UnloadIntegrationRequest{Name: name}, requestTimeout)
	if err == nil {
		err = response.GetResponseError()
	}
	if err != nil {
		return actorError(err)
	}
	return lifecycleResult(c, name, response.Ok)
}

func (s *Server) DevicesHandler(c echo.Context) error {
	entries, err := s.devices.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]deviceView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, deviceView{
			Integration:  entry.Instance.Name,
			DeviceId:     entry.Device.Id,
			Name:         entry.Device.Name,
			Manufacturer: entry.Device.Manufacturer,
			Model:        entry.Device.Model,
			Version:      entry.Device.Version,
			RegisteredAt: entry.RegisteredAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func lifecycleResult(c echo.Context, name string, ok bool) error {
	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
	}
	return c.JSON(status, lifecycleView{Integration: name, Ok: ok})
}

func toIntegrationView(instance domain.IntegrationInstance) integrationView {
	return integrationView{
		Id:    instance.Id,
		Name:  instance.Name,
		Title: instance.Title,
		Kind:  instance.Kind,
	}
}

func actorError(err error) error {
	if errors.Is(err, domain.ErrUnknownIntegration) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
}
