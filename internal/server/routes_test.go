package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/berfenger/statesync2mqtt/internal/adapter/storage/sqlitedir"
	"github.com/berfenger/statesync2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var home = domain.IntegrationInstance{Id: "w-1", Name: "home", Title: "Home", Kind: domain.INTEGRATION_KIND_WEATHER}

func unknown(name string) domain.ActorResponseMixIn {
	return domain.ErrorResponse(fmt.Errorf("%w: %s", domain.ErrUnknownIntegration, name))
}

// fakeMaster answers like the master actor for a single "home" instance.
func fakeMaster(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: true})
	case domain.ListIntegrationsRequest:
		ctx.Respond(domain.ListIntegrationsResponse{Integrations: []domain.IntegrationStatus{{Instance: home}}})
	case domain.GetReadingsRequest:
		if msg.Name != home.Name {
			ctx.Respond(domain.GetReadingsResponse{ActorResponseMixIn: unknown(msg.Name)})
			return
		}
		ctx.Respond(domain.GetReadingsResponse{
			Instance:  home,
			State:     "connected",
			Connected: true,
			Readings: []domain.PublishedReading{{
				Identity: domain.SensorIdentity{SensorType: "temperature", UniqueId: "Ottawa-temperature", DisplayName: "Home Temperature"},
				Reading:  domain.NormalizedReading{SensorType: "temperature", Value: 21.5, Unit: "°C", DeviceClass: domain.DEVICE_CLASS_TEMPERATURE},
			}},
		})
	case domain.SetupIntegrationRequest:
		if msg.Name != home.Name {
			ctx.Respond(domain.SetupIntegrationResponse{ActorResponseMixIn: unknown(msg.Name)})
			return
		}
		ctx.Respond(domain.SetupIntegrationResponse{Instance: home, Ok: false})
	case domain.UnloadIntegrationRequest:
		ctx.Respond(domain.UnloadIntegrationResponse{Instance: home, Ok: true})
	}
}

func newTestServer(t *testing.T) http.Handler {
	return newTestServerWithDevices(t, nil)
}

func newTestServerWithDevices(t *testing.T, devices DeviceLister) http.Handler {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromFunc(fakeMaster))

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "statesync_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := &Server{rootContext: as.Root, masterActor: pid, gatherer: reg, devices: devices}
	return s.RegisterRoutes()
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := serve(newTestServer(t), http.MethodGet, "/healthcheck")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())
}

func TestMetrics(t *testing.T) {
	rec := serve(newTestServer(t), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "statesync_test_total 1")
}

func TestListIntegrations(t *testing.T) {
	rec := serve(newTestServer(t), http.MethodGet, "/api/integrations")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []integrationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "home", out[0].Name)
	assert.Equal(t, domain.INTEGRATION_KIND_WEATHER, out[0].Kind)
	assert.False(t, out[0].Unloaded)
}

func TestSensors(t *testing.T) {
	h := newTestServer(t)

	rec := serve(h, http.MethodGet, "/api/integrations/home/sensors")
	require.Equal(t, http.StatusOK, rec.Code)
	var out sensorsView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Connected)
	require.Len(t, out.Sensors, 1)
	assert.Equal(t, "Home Temperature", out.Sensors[0].Name)
	assert.Equal(t, 21.5, out.Sensors[0].Value)
	assert.True(t, strings.HasSuffix(out.Sensors[0].EntityId, "_temperature"))

	rec = serve(h, http.MethodGet, "/api/integrations/nope/sensors")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLifecycleRoutes(t *testing.T) {
	h := newTestServer(t)

	rec := serve(h, http.MethodPost, "/api/integrations/home/unload")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"integration":"home","ok":true}`, rec.Body.String())

	rec = serve(h, http.MethodPost, "/api/integrations/home/setup")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"integration":"home","ok":false}`, rec.Body.String())

	rec = serve(h, http.MethodPost, "/api/integrations/nope/setup")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDevices(t *testing.T) {
	dir, err := sqlitedir.Open(filepath.Join(t.TempDir(), "devices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })
	require.NoError(t, dir.Register(context.Background(), home, domain.Device{
		Id: "statesync2mqtt_abc", Identifiers: []string{"statesync2mqtt:ON/s0000430"},
		Name: "Home", Manufacturer: "Environment Canada", Model: "City page weather", Version: "unknown",
	}))

	rec := serve(newTestServerWithDevices(t, dir), http.MethodGet, "/api/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	var out []deviceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "home", out[0].Integration)
	assert.Equal(t, "Environment Canada", out[0].Manufacturer)

	// without a directory the route is not served
	rec = serve(newTestServer(t), http.MethodGet, "/api/devices")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
