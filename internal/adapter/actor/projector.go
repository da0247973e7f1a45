package actor

import (
	"context"
	"fmt"
	"time"

	"beamctl/internal/config"
	"beamctl/internal/core/domain"
	"beamctl/internal/core/events"
	"beamctl/internal/util/actorutil"
	"beamctl/pkg/projector"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// ProjectorActor owns one device. Every exchange with the device goes
// through this actor's mailbox, so commands to the same projector are
// serialized while different projectors proceed in parallel.
type ProjectorActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash

	config      *config.Config
	instance    domain.DeviceInstance
	profile     *projector.Profile
	dispatcher  *projector.Dispatcher
	sync        *projector.Synchronizer
	eventStream *eventstream.EventStream
	cancelCycle context.CancelFunc

	logger *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

type cycleDone struct {
	response domain.SetSourceResponse
	replyTo  *actor.PID
}

func NewProjectorActor(cfg *config.Config, instance domain.DeviceInstance, profile *projector.Profile,
	eventStream *eventstream.EventStream, logger *zap.Logger) *ProjectorActor {
	dispatcher := projector.NewDispatcher(
		time.Duration(cfg.CommandConfig.TimeoutMillis)*time.Millisecond,
		time.Duration(cfg.CommandConfig.DuplicateDelayMillis)*time.Millisecond)
	act := &ProjectorActor{
		config:      cfg,
		instance:    instance,
		profile:     profile,
		dispatcher:  dispatcher,
		sync:        projector.NewSynchronizer(dispatcher, logger),
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger("projector/"+instance.ID, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ProjectorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ProjectorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("projector@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.instance.ID,
			Healthy: true,
			State:   "idle",
		})
	case domain.ExecuteCommandRequest:
		state.logger.Debug("projector@default: ExecuteCommandRequest", zap.String("command", msg.Command))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		command := msg.Command
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.ExecuteCommandResponse, error) {
			return state.executeCommand(command)
		}), mapTaskResult[domain.ExecuteCommandResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ExecuteCommandResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Device:  state.instance.ID,
					Command: command,
				},
				replyTo: sender,
			}
		}).WithTimeout(state.exchangeTimeout()).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case domain.QueryStateRequest:
		state.logger.Debug("projector@default: QueryStateRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, state.queryState),
			mapTaskResult[domain.QueryStateResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.QueryStateResponse{
					Device: state.instance.ID,
					Power:  projector.PowerUnknown,
				},
				replyTo: sender,
			}
		}).WithTimeout(state.exchangeTimeout()).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case domain.SetPowerRequest:
		state.logger.Debug("projector@default: SetPowerRequest", zap.Bool("on", msg.On))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		command := "power_off"
		if msg.On {
			command = "power_on"
		}
		on := msg.On
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.ExecuteCommandResponse, error) {
			resp, err := state.executeCommand(command)
			if err == nil && resp.OK {
				state.eventStream.Publish(events.PowerSwitchUpdateEvent(state.instance.ID, on))
			}
			return resp, err
		}), mapTaskResult[domain.ExecuteCommandResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ExecuteCommandResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Device:  state.instance.ID,
					Command: command,
				},
				replyTo: sender,
			}
		}).WithTimeout(state.exchangeTimeout()).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case domain.SetSourceRequest:
		state.logger.Debug("projector@default: SetSourceRequest", zap.String("source", msg.Source))
		state.startCycle(ctx, msg)
	case domain.CancelSetSourceRequest:
		// nothing in flight
		ctx.Respond(domain.CancelSetSourceResponse{Cancelled: false})
	case *actor.Stopping:
	default:
		state.logger.Debug("projector@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// WaitingDevice holds the mailbox while one device exchange completes;
// everything else queues behind it.
func (state *ProjectorActor) WaitingDevice(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("projector@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("projector@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// startCycle launches the source change on its own goroutine with a
// cancellable context, then parks the actor in CyclingReceive so the cycle
// can be aborted or superseded mid-flight.
func (state *ProjectorActor) startCycle(ctx actor.Context, msg domain.SetSourceRequest) {
	sender := actorutil.ForRequest(msg).ReplyTo(ctx)
	cycleCtx, cancel := context.WithCancel(context.Background())
	state.cancelCycle = cancel

	self := ctx.Self()
	root := ctx.ActorSystem().Root
	profile := state.profile
	device := state.instance.ToProjector()
	target := msg.Source
	opts := projector.CycleOptions{
		MaxSteps:  int(state.config.CycleConfig.MaxSteps),
		StepDelay: time.Duration(state.config.CycleConfig.StepDelayMillis) * time.Millisecond,
	}
	sync := state.sync
	deviceId := state.instance.ID

	go func() {
		res, err := sync.SetSource(cycleCtx, profile, device, target, opts)
		root.Send(self, cycleDone{
			response: domain.SetSourceResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
				Device:     deviceId,
				Converged:  res.Converged,
				StepsTaken: res.StepsTaken,
				LastSource: res.LastSource,
			},
			replyTo: sender,
		})
	}()
	state.behavior.BecomeStacked(state.CyclingReceive)
}

func (state *ProjectorActor) CyclingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case cycleDone:
		state.logger.Debug("projector@cycling cycleDone",
			zap.Bool("converged", msg.response.Converged),
			zap.Int("steps", msg.response.StepsTaken))
		state.cancelCycle = nil
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.response)
		}
		if msg.response.Converged {
			state.eventStream.Publish(events.SourceSelectUpdateEvent(state.instance.ID, msg.response.LastSource))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.CancelSetSourceRequest:
		state.logger.Debug("projector@cycling CancelSetSourceRequest")
		if state.cancelCycle != nil {
			state.cancelCycle()
		}
		ctx.Respond(domain.CancelSetSourceResponse{Cancelled: true})
	case domain.SetSourceRequest:
		// a newer target supersedes the running cycle
		state.logger.Debug("projector@cycling superseding SetSourceRequest", zap.String("source", msg.Source))
		if state.cancelCycle != nil {
			state.cancelCycle()
		}
		state.stash.Stash(ctx, msg)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.instance.ID,
			Healthy: true,
			State:   "cycling",
		})
	default:
		state.logger.Debug("projector@cycling stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ProjectorActor) executeCommand(command string) (*domain.ExecuteCommandResponse, error) {
	res, err := state.dispatcher.Execute(context.Background(), state.profile, command, state.instance.ToProjector())
	if err != nil {
		return nil, err
	}
	return &domain.ExecuteCommandResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: errOrNil(res.Err),
		},
		Device:      state.instance.ID,
		Command:     command,
		OK:          res.OK,
		StatusCode:  res.StatusCode,
		RawResponse: string(res.RawResponse),
	}, nil
}

func (state *ProjectorActor) queryState() *domain.QueryStateResponse {
	ctx := context.Background()
	device := state.instance.ToProjector()
	power := state.sync.QueryStatus(ctx, state.profile, device)
	var source string
	var sourceKnown bool
	if power == projector.PowerOn {
		source, sourceKnown = state.sync.QuerySource(ctx, state.profile, device)
	}
	return &domain.QueryStateResponse{
		Device:      state.instance.ID,
		Power:       power,
		Source:      source,
		SourceKnown: sourceKnown,
	}
}

func (state *ProjectorActor) exchangeTimeout() time.Duration {
	// command timeout, duplicate send and its delay, plus slack
	base := time.Duration(state.config.CommandConfig.TimeoutMillis) * time.Millisecond
	delay := time.Duration(state.config.CommandConfig.DuplicateDelayMillis) * time.Millisecond
	return 2*base + delay + time.Second
}

func errOrNil(err *projector.Error) error {
	if err != nil {
		return err
	}
	return nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
