package actor

import (
	"fmt"
	"testing"
	"time"

	adactor "beamctl/internal/adapter/actor"
	"beamctl/internal/core/domain"
	"beamctl/internal/store"
	"beamctl/internal/util"

	"beamctl/pkg/projector"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestFleetActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	registry := projector.NewRegistry()
	virtual := projector.NewVirtual(false, "HDMI 1")
	if err := registry.Register(virtual.Profile()); err != nil {
		t.Fatal(err)
	}

	deviceStore, err := store.NewStore(afero.NewMemMapFs(), "devices.json")
	if err != nil {
		t.Fatal(err)
	}
	saved, err := deviceStore.Add(domain.DeviceInstance{
		Name:        "Meeting Room",
		IP:          "127.0.0.1",
		ProfileType: "virtual",
	})
	if err != nil {
		t.Fatal(err)
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewFleetActor(cfg, registry, deviceStore, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, "fleet")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.True(t, healthResp.Healthy, "healthy is true")

	// route a command to the device child
	res, err = context.RequestFuture(pid, domain.ExecuteCommandRequest{
		DeviceRequestMixIn: domain.DeviceRequestMixIn{Device: saved.ID},
		Command:            "power_on",
	}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	cmdResp, ok := res.(domain.ExecuteCommandResponse)
	assert.True(t, ok)
	assert.True(t, cmdResp.OK)
	assert.True(t, virtual.Powered())

	// roster queries
	res, err = context.RequestFuture(pid, domain.ListDevicesRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	listResp, ok := res.(domain.ListDevicesResponse)
	assert.True(t, ok)
	assert.Len(t, listResp.Devices, 1)
	assert.Equal(t, saved.ID, listResp.Devices[0].ID)

	res, err = context.RequestFuture(pid, domain.ListProfilesRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	profilesResp, ok := res.(domain.ListProfilesResponse)
	assert.True(t, ok)
	assert.Contains(t, profilesResp.Types, "virtual")

	context.Stop(pid)

	as.Shutdown()
}

func TestFleetActorAddRemoveDevice(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	registry := projector.NewRegistry()
	virtual := projector.NewVirtual(false, "HDMI 1")
	if err := registry.Register(virtual.Profile()); err != nil {
		t.Fatal(err)
	}

	deviceStore, err := store.NewStore(afero.NewMemMapFs(), "devices.json")
	if err != nil {
		t.Fatal(err)
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewFleetActor(cfg, registry, deviceStore, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, "fleet")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(1 * time.Second)

	// unknown profile type is rejected before anything is stored
	res, err := context.RequestFuture(pid, domain.AddDeviceRequest{
		Device: domain.DeviceInstance{Name: "Aula", IP: "10.0.0.9", ProfileType: "nope"},
	}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	addResp, ok := res.(domain.AddDeviceResponse)
	assert.True(t, ok)
	assert.True(t, addResp.HasResponseError())

	res, err = context.RequestFuture(pid, domain.AddDeviceRequest{
		Device: domain.DeviceInstance{Name: "Aula", IP: "10.0.0.9", ProfileType: "virtual"},
	}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	addResp, ok = res.(domain.AddDeviceResponse)
	assert.True(t, ok)
	assert.False(t, addResp.HasResponseError())
	assert.NotEmpty(t, addResp.Device.ID)

	// the new device actor answers requests
	res, err = context.RequestFuture(pid, domain.QueryStateRequest{
		DeviceRequestMixIn: domain.DeviceRequestMixIn{Device: addResp.Device.ID},
	}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	stateResp, ok := res.(domain.QueryStateResponse)
	assert.True(t, ok)
	assert.Equal(t, projector.PowerOff, stateResp.Power)

	res, err = context.RequestFuture(pid, domain.RemoveDeviceRequest{ID: addResp.Device.ID}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	removeResp, ok := res.(domain.RemoveDeviceResponse)
	assert.True(t, ok)
	assert.True(t, removeResp.Removed)

	// removed device no longer routes
	res, err = context.RequestFuture(pid, domain.ListDevicesRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	listResp, ok := res.(domain.ListDevicesResponse)
	assert.True(t, ok)
	assert.Len(t, listResp.Devices, 0)

	context.Stop(pid)

	as.Shutdown()
}
