package actor

import (
	"context"
	"fmt"
	"time"

	"beamctl/internal/config"
	"beamctl/internal/core/domain"
	"beamctl/internal/util/actorutil"

	"beamctl/pkg/projector"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// DiscoveryActor owns network scans. A scan runs on a goroutine; while one
// is in flight the actor stashes everything but the abort request, so two
// scans never overlap.
type DiscoveryActor struct {
	behavior   actor.Behavior
	stash      *actorutil.Stash
	config     *config.Config
	registry   *projector.Registry
	prober     *projector.Prober
	cancelScan context.CancelFunc
	logger     *zap.Logger
}

type scanDone struct {
	report  projector.ScanReport
	replyTo *actor.PID
}

func NewDiscoveryActor(cfg *config.Config, registry *projector.Registry, logger *zap.Logger) *DiscoveryActor {
	act := &DiscoveryActor{
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		config:   cfg,
		registry: registry,
		prober: projector.NewProber(registry,
			time.Duration(cfg.DiscoveryConfig.ProbeTimeoutMillis)*time.Millisecond, logger),
		logger: actorutil.ActorLogger(domain.ACTOR_ID_DISCOVERY, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *DiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("discovery@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DISCOVERY,
			Healthy: true,
			State:   "idle",
		})
	case domain.StartScanRequest:
		state.logger.Info("discovery@default scan start",
			zap.String("network", state.config.DiscoveryConfig.BaseNetwork))
		state.startScan(ctx, actorutil.ForRequest(msg).ReplyTo(ctx))
		state.behavior.BecomeStacked(state.ScanningReceive)
	case domain.AbortScanRequest:
		// nothing running
		actorutil.ForRequest(msg).Respond(ctx, domain.AbortScanResponse{Aborted: false})
	}
}

func (state *DiscoveryActor) ScanningReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case scanDone:
		state.cancelScan = nil
		state.logger.Info("discovery@scanning scan done",
			zap.Int("resolved", len(msg.report.Resolved)),
			zap.Int("unauthorized", len(msg.report.Unauthorized)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, domain.ScanReportResponse{Report: msg.report})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.AbortScanRequest:
		state.logger.Info("discovery@scanning abort")
		if state.cancelScan != nil {
			state.cancelScan()
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.AbortScanResponse{Aborted: true})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DISCOVERY,
			Healthy: true,
			State:   "scanning",
		})
	case *actor.Stopping:
		if state.cancelScan != nil {
			state.cancelScan()
		}
	default:
		state.logger.Debug("discovery@scanning stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DiscoveryActor) startScan(ctx actor.Context, replyTo *actor.PID) {
	scanCtx, cancel := context.WithCancel(context.Background())
	state.cancelScan = cancel

	self := ctx.Self()
	root := ctx.ActorSystem().Root
	prober := state.prober
	cfg := state.config.DiscoveryConfig

	// ScanRange blocks for the whole sweep, so it runs off the mailbox and
	// reports back with a message.
	go func() {
		defer cancel()
		report := prober.ScanRange(scanCtx, cfg.BaseNetwork, int(cfg.FirstHost), int(cfg.LastHost), int(cfg.Parallel))
		root.Send(self, scanDone{report: report, replyTo: replyTo})
	}()
}
