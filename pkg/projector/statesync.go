package projector

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CycleOptions bound a source-cycle loop. There are no library defaults: the
// right step budget and settle delay are deployment decisions.
type CycleOptions struct {
	MaxSteps  int
	StepDelay time.Duration
}

// CycleResult reports how a SetSource call ended. A non-converged cycle is a
// report, not an error: the device may legitimately be off or mid-transition.
type CycleResult struct {
	Converged  bool
	StepsTaken int
	LastSource string
}

// Synchronizer reconciles the caller's notion of power/source state with the
// device-reported truth and drives multi-step source changes to completion.
type Synchronizer struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewSynchronizer(dispatcher *Dispatcher, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// QueryStatus wraps the profile's status query. It never fails: any error
// degrades to PowerUnknown so read-only polling cannot destabilize callers.
func (s *Synchronizer) QueryStatus(ctx context.Context, p *Profile, device Device) PowerState {
	if p.Status == nil {
		return PowerUnknown
	}
	state, err := p.Status(ctx, s.dispatcher.Client(), p.Login(device), device.IP)
	if err != nil {
		s.logger.Debug("status query failed", zap.String("device", device.Name), zap.Error(err))
		return PowerUnknown
	}
	return state
}

// QuerySource wraps the profile's source query. ok is false when the device
// is off, unreachable or the response was unrecognized.
func (s *Synchronizer) QuerySource(ctx context.Context, p *Profile, device Device) (string, bool) {
	if p.Source == nil {
		return "", false
	}
	source, err := p.Source(ctx, s.dispatcher.Client(), p.Login(device), device.IP)
	if err != nil || source == "" {
		if err != nil {
			s.logger.Debug("source query failed", zap.String("device", device.Name), zap.Error(err))
		}
		return "", false
	}
	return source, true
}

// SetSource drives the device to target. Vendors with direct per-source
// commands get a single dispatch; cycle-based vendors get a feedback loop
// that presses the cycle key until the device reports the target or the step
// budget runs out. The loop checks ctx before every iteration so a caller
// can abandon it mid-cycle.
func (s *Synchronizer) SetSource(ctx context.Context, p *Profile, device Device, target string, opts CycleOptions) (CycleResult, error) {
	if current, ok := s.QuerySource(ctx, p, device); ok && SourceEqual(current, target) {
		return CycleResult{Converged: true, LastSource: current}, nil
	}

	if cycleCmd, ok := cycleCommandFor(p, target); ok {
		return s.cycleToSource(ctx, p, device, target, cycleCmd, opts)
	}

	return s.directSource(ctx, p, device, target)
}

// CycleSources lists the logical sources served by one cycle command,
// deduplicated by normalized name.
func CycleSources(p *Profile, cycleCommand string) []string {
	var targets []string
	seen := map[string]bool{}
	for target, cmd := range p.CycleTargets {
		if cmd != cycleCommand {
			continue
		}
		key := normalizeSource(target)
		if seen[key] {
			continue
		}
		seen[key] = true
		targets = append(targets, target)
	}
	return targets
}

// DirectSources lists the logical sources addressable by direct source
// commands.
func DirectSources(p *Profile) []string {
	var targets []string
	for name, cmd := range p.Commands {
		if cmd.Kind == KindSource {
			targets = append(targets, name)
		}
	}
	return targets
}

func cycleCommandFor(p *Profile, target string) (string, bool) {
	if cmd, ok := p.CycleTargets[target]; ok {
		return cmd, true
	}
	for t, cmd := range p.CycleTargets {
		if SourceEqual(t, target) {
			return cmd, true
		}
	}
	return "", false
}

func (s *Synchronizer) directSource(ctx context.Context, p *Profile, device Device, target string) (CycleResult, error) {
	name := ""
	for candidate, cmd := range p.Commands {
		if cmd.Kind == KindSource && SourceEqual(candidate, target) {
			name = candidate
			break
		}
	}
	if name == "" {
		return CycleResult{}, &UnknownCommandError{Profile: p.Type, Command: target}
	}
	res, err := s.dispatcher.Execute(ctx, p, name, device)
	if err != nil {
		return CycleResult{}, err
	}
	if res.Err != nil {
		return CycleResult{StepsTaken: 1}, res.Err
	}
	return CycleResult{Converged: true, StepsTaken: 1, LastSource: target}, nil
}

func (s *Synchronizer) cycleToSource(ctx context.Context, p *Profile, device Device, target, cycleCmd string, opts CycleOptions) (CycleResult, error) {
	lastSource := ""
	for step := 0; step < opts.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return CycleResult{StepsTaken: step, LastSource: lastSource}, err
		}

		if current, ok := s.QuerySource(ctx, p, device); ok {
			lastSource = current
			if SourceEqual(current, target) {
				return CycleResult{Converged: true, StepsTaken: step, LastSource: current}, nil
			}
		}
		// A failed probe mid-cycle means "source unknown, keep trying": the
		// device may still be powering on.

		res, err := s.dispatcher.Execute(ctx, p, cycleCmd, device)
		if err != nil {
			return CycleResult{StepsTaken: step, LastSource: lastSource}, err
		}
		if res.Err != nil {
			s.logger.Debug("cycle advance failed",
				zap.String("device", device.Name),
				zap.String("command", cycleCmd),
				zap.Error(res.Err))
		}

		select {
		case <-time.After(opts.StepDelay):
		case <-ctx.Done():
			return CycleResult{StepsTaken: step + 1, LastSource: lastSource}, ctx.Err()
		}
	}

	// Final check after the last press.
	if current, ok := s.QuerySource(ctx, p, device); ok {
		lastSource = current
		if SourceEqual(current, target) {
			return CycleResult{Converged: true, StepsTaken: opts.MaxSteps, LastSource: current}, nil
		}
	}
	return CycleResult{StepsTaken: opts.MaxSteps, LastSource: lastSource}, nil
}
