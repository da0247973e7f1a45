package actor

import (
	"fmt"
	"log"
	"time"

	adactor "beamctl/internal/adapter/actor"
	"beamctl/internal/config"
	"beamctl/internal/core/domain"
	"beamctl/internal/store"
	. "beamctl/internal/util/actorutil"

	"beamctl/pkg/projector"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// FleetActor supervises one device actor per configured projector plus the
// shared MQTT, monitor and discovery children, and routes every request to
// the right child.
type FleetActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	registry *projector.Registry
	store    *store.Store

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	mqttActor          *actor.PID
	monitorActor       *actor.PID
	discoveryActor     *actor.PID
	haDiscoveryActor   *actor.PID
	deviceActors       map[string]*actor.PID
	devices            []domain.DeviceInstance
	mqttActorProvider  MQTTActorProvider
	logger             *zap.Logger
}

type healthCheckResult struct {
	mqttActorHealthy      bool
	monitorActorHealthy   bool
	discoveryActorHealthy bool
	checksReceived        int
	respondTo             *actor.PID
}

func NewFleetActor(config config.Config, registry *projector.Registry, deviceStore *store.Store,
	mqttActorProvider MQTTActorProvider, logger *zap.Logger) *FleetActor {
	act := &FleetActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		registry:          registry,
		store:             deviceStore,
		logger:            ActorLogger(domain.ACTOR_ID_FLEET, logger),
		eventStream:       &eventstream.EventStream{},
		deviceActors:      map[string]*actor.PID{},
		mqttActorProvider: mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *FleetActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *FleetActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("fleet@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		devices, err := state.store.Load()
		if err != nil {
			panic(err)
		}
		state.devices = devices

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start one device child per roster entry
		for _, device := range devices {
			pid, err := state.startDeviceActor(ctx, device)
			if err != nil {
				panic(err)
			}
			state.deviceActors[device.ID] = pid
		}

		// start monitor child
		monitorActorPID, err := state.startMonitorActor(ctx)
		if err != nil {
			panic(err)
		}
		state.monitorActor = monitorActorPID

		// start discovery child
		discoveryActorPID, err := state.startDiscoveryActor(ctx)
		if err != nil {
			panic(err)
		}
		state.discoveryActor = discoveryActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			haDiscPID, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
			state.haDiscoveryActor = haDiscPID
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("fleet@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *FleetActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("fleet@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// Monitor Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.monitorActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MONITOR,
				Healthy: false,
			}
		})
		// Discovery Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.discoveryActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_DISCOVERY,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to the matching device actor
		state.logger.Debug("fleet@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err == nil && cmd != nil {
				state.routeDeviceRequest(ctx, cmd)
			}
		}
	case domain.DeviceRequest:
		state.routeDeviceRequest(ctx, msg)
	case domain.StartScanRequest:
		ctx.RequestWithCustomSender(state.discoveryActor, msg, ctx.Sender())
	case domain.AbortScanRequest:
		ctx.RequestWithCustomSender(state.discoveryActor, msg, ctx.Sender())
	case domain.ListDevicesRequest:
		ForRequest(msg).Respond(ctx, domain.ListDevicesResponse{Devices: state.devices})
	case domain.ListProfilesRequest:
		ForRequest(msg).Respond(ctx, domain.ListProfilesResponse{Types: state.registry.Types()})
	case domain.AddDeviceRequest:
		state.logger.Info("fleet@default addDevice", zap.String("ip", msg.Device.IP), zap.String("type", msg.Device.ProfileType))
		state.addDevice(ctx, msg)
	case domain.RemoveDeviceRequest:
		state.logger.Info("fleet@default removeDevice", zap.String("id", msg.ID))
		state.removeDevice(ctx, msg)
	case *actor.Terminated:
		state.logger.Debug("fleet@default child terminated", zap.String("who", msg.Who.Id))
	default:
		state.logger.Debug("fleet@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *FleetActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("fleet@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			if msg.Id == domain.ACTOR_ID_MQTT {
				state.currentHealthCheck.mqttActorHealthy = true
			} else if msg.Id == domain.ACTOR_ID_MONITOR {
				state.currentHealthCheck.monitorActorHealthy = true
			} else if msg.Id == domain.ACTOR_ID_DISCOVERY {
				state.currentHealthCheck.discoveryActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("fleet@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// routeDeviceRequest forwards msg to the device actor it targets, keeping
// the original sender so the child responds directly.
func (state *FleetActor) routeDeviceRequest(ctx actor.Context, msg domain.DeviceRequest) {
	pid, ok := state.deviceActors[msg.TargetDevice()]
	if !ok {
		state.logger.Warn("fleet@default unknown device", zap.String("device", msg.TargetDevice()))
		ForRequest(msg).Respond(ctx, domain.ActorResponseMixIn{
			ResponseError: fmt.Errorf("%w: %s", domain.ErrUnknownDevice, msg.TargetDevice()),
		})
		return
	}
	ctx.RequestWithCustomSender(pid, msg, ctx.Sender())
}

func (state *FleetActor) addDevice(ctx actor.Context, msg domain.AddDeviceRequest) {
	// profile must exist before anything is persisted
	if _, err := state.registry.Get(msg.Device.ProfileType); err != nil {
		ForRequest(msg).Respond(ctx, domain.AddDeviceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}

	saved, err := state.store.Add(msg.Device)
	if err != nil {
		ForRequest(msg).Respond(ctx, domain.AddDeviceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}

	pid, err := state.startDeviceActor(ctx, saved)
	if err != nil {
		ForRequest(msg).Respond(ctx, domain.AddDeviceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}
	state.deviceActors[saved.ID] = pid
	state.devices = append(state.devices, saved)
	state.notifyRosterUpdate(ctx)

	ForRequest(msg).Respond(ctx, domain.AddDeviceResponse{Device: saved})
}

func (state *FleetActor) removeDevice(ctx actor.Context, msg domain.RemoveDeviceRequest) {
	if err := state.store.Remove(msg.ID); err != nil {
		ForRequest(msg).Respond(ctx, domain.RemoveDeviceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Removed:            false,
		})
		return
	}
	if pid, ok := state.deviceActors[msg.ID]; ok {
		ctx.Stop(pid)
		delete(state.deviceActors, msg.ID)
	}
	kept := state.devices[:0]
	for _, d := range state.devices {
		if d.ID != msg.ID {
			kept = append(kept, d)
		}
	}
	state.devices = kept
	state.notifyRosterUpdate(ctx)

	ForRequest(msg).Respond(ctx, domain.RemoveDeviceResponse{Removed: true})
}

func (state *FleetActor) notifyRosterUpdate(ctx actor.Context) {
	update := domain.DeviceRosterUpdate{Devices: state.devices}
	ctx.Send(state.monitorActor, update)
	if state.haDiscoveryActor != nil {
		ctx.Send(state.haDiscoveryActor, update)
	}
}

func (state *FleetActor) startDeviceActor(ctx actor.Context, device domain.DeviceInstance) (*actor.PID, error) {

	profile, err := state.registry.Get(device.ProfileType)
	if err != nil {
		return nil, err
	}

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	deviceProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewProjectorActor(&state.config, device, profile, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(deviceProps, device.ID)
}

func (state *FleetActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *FleetActor) startMonitorActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	monitorProps := actor.PropsFromProducer(func() actor.Actor {
		return NewMonitorActor(&state.config, state.devices, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(monitorProps, domain.ACTOR_ID_MONITOR)
}

func (state *FleetActor) startDiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	discoveryProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewDiscoveryActor(&state.config, state.registry, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(discoveryProps, domain.ACTOR_ID_DISCOVERY)
}

func (state *FleetActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.registry, state.devices, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *healthCheckResult) reset() {
	state.mqttActorHealthy = false
	state.monitorActorHealthy = false
	state.discoveryActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 3
}

func (state *healthCheckResult) allHealthy() bool {
	return state.mqttActorHealthy && state.monitorActorHealthy && state.discoveryActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_FLEET,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
