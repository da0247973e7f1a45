package actor

import (
	"errors"
	"fmt"
	"time"

	"beamctl/internal/config"
	"beamctl/internal/core/domain"
	"beamctl/internal/util/actorutil"

	"beamctl/pkg/projector"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes the Home Assistant discovery configs for the
// bridge and every device, and republishes them when the roster changes.
type HADiscoveryActor struct {
	config    *config.Config
	behavior  actor.Behavior
	stash     *actorutil.Stash
	registry  *projector.Registry
	devices   []domain.DeviceInstance
	mqttActor *actor.PID

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, registry *projector.Registry, devices []domain.DeviceInstance,
	mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		registry:  registry,
		devices:   devices,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// MQTT must be up before discovery configs go out
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		state.publishDiscovery(ctx)
		state.behavior.Become(state.DoneReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DoneReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.DeviceRosterUpdate:
		state.logger.Debug("hadiscovery@done roster update", zap.Int("devices", len(msg.Devices)))
		state.devices = msg.Devices
		state.publishDiscovery(ctx)
	}
}

func (state *HADiscoveryActor) publishDiscovery(ctx actor.Context) {

	var sensors []domain.GenericSensor
	var switches []domain.GenericSwitch
	var selects []domain.GenericSelect

	bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)

	for _, instance := range state.devices {
		profile, err := state.registry.Get(instance.ProfileType)
		if err != nil {
			state.logger.Warn("hadiscovery@publish unknown profile",
				zap.String("device", instance.ID), zap.String("type", instance.ProfileType))
			continue
		}

		haDevice := domain.ProjectorHADevice(instance, profile)
		haDevice.ViaDevice = bridgeDevice.Id

		deviceSensors := domain.ProjectorSensors(haDevice, instance)
		for i := range deviceSensors {
			if i > 0 {
				deviceSensors[i].Device = domain.IdDevice(haDevice)
			}
			sensors = append(sensors, deviceSensors[i])
		}
		switches = append(switches, domain.ProjectorSwitches(domain.IdDevice(haDevice), instance)...)
		selects = append(selects, domain.ProjectorSelects(domain.IdDevice(haDevice), instance, profile)...)
	}

	state.logger.Info("hadiscovery@publish",
		zap.Int("sensors", len(sensors)),
		zap.Int("switches", len(switches)),
		zap.Int("selects", len(selects)))

	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:  sensors,
		Switches: switches,
		Selects:  selects,
	})
}
