package actor

import (
	"fmt"
	"time"

	"beamctl/internal/config"
	"beamctl/internal/core/domain"
	"beamctl/internal/core/events"
	. "beamctl/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// MonitorActor polls every device on a timer and publishes the resulting
// entity updates to the event bus. State queries go through the parent so
// routing stays in one place.
type MonitorActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	config      *config.Config
	devices     []domain.DeviceInstance
	eventStream *eventstream.EventStream

	logger *zap.Logger
}

type monitorTick struct {
}

func NewMonitorActor(config *config.Config, devices []domain.DeviceInstance, eventStream *eventstream.EventStream, logger *zap.Logger) *MonitorActor {
	act := &MonitorActor{
		config:      config,
		devices:     devices,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_MONITOR, logger),
		eventStream: eventStream,
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *MonitorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MonitorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("monitor@default started")

		if state.config.MonitorConfig.PollIntervalMillis > 0 {
			state.scheduler = scheduler.NewTimerScheduler(ctx)
			state.scheduler.RequestOnce(time.Duration(state.config.MonitorConfig.PollIntervalMillis)*time.Millisecond, ctx.Self(), monitorTick{})
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("monitor@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MONITOR,
			Healthy: true,
			State:   "idle",
		})
	case monitorTick:
		state.logger.Debug("monitor@default tick", zap.Int("devices", len(state.devices)))
		for _, device := range state.devices {
			deviceId := device.ID
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(ctx.Parent(), domain.QueryStateRequest{
				DeviceRequestMixIn: domain.DeviceRequestMixIn{Device: deviceId},
			}, state.queryTimeout()), func(err error) any {
				return domain.QueryStateResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Device: deviceId,
				}
			})
		}

		// schedule next tick
		state.scheduler.RequestOnce(time.Duration(state.config.MonitorConfig.PollIntervalMillis)*time.Millisecond, ctx.Self(), monitorTick{})
	case domain.QueryStateResponse:
		if msg.HasResponseError() {
			state.logger.Debug("monitor@default QueryStateResponse error",
				zap.String("device", msg.Device), zap.Error(msg.GetResponseError()))
			// no answer at all still means unreachable
			state.eventStream.Publish(events.DeviceUnreachableEvent(msg.Device))
			return
		}
		state.logger.Debug("monitor@default QueryStateResponse", zap.String("device", msg.Device))
		for _, ev := range events.DeviceStateToUpdateEvents(msg) {
			state.eventStream.Publish(ev)
		}
	case domain.DeviceRosterUpdate:
		state.logger.Debug("monitor@default roster update", zap.Int("devices", len(msg.Devices)))
		state.devices = msg.Devices
	default:
		state.logger.Debug("monitor@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// queryTimeout leaves room for a full power+source exchange including one
// duplicate send.
func (state *MonitorActor) queryTimeout() time.Duration {
	base := time.Duration(state.config.CommandConfig.TimeoutMillis) * time.Millisecond
	delay := time.Duration(state.config.CommandConfig.DuplicateDelayMillis) * time.Millisecond
	return 2*base + delay + 1*time.Second
}
