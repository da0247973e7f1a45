package projector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// cycleDevice simulates a vendor whose only source control is a "next input"
// key; every press advances through order.
type cycleDevice struct {
	mu       sync.Mutex
	order    []string
	idx      int
	presses  int
	silent   bool
	failNext bool
}

func (d *cycleDevice) profile() Profile {
	return Profile{
		Type:         "cycletest",
		DefaultLogin: Credentials{Username: "u", Password: "p"},
		Signature:    DiscoverySignature{ProbePath: "/control"},
		Commands: map[string]Command{
			"power_on": {Kind: KindPower, Method: MethodGet, Path: "/cmd?", KVJoiner: "=", KJoiner: "&"},
			"NEXT":     {Kind: KindSourceCycle, Method: MethodGet, Path: "/cmd?", KVJoiner: "=", KJoiner: "&"},
		},
		CycleTargets: map[string]string{
			"HDMI 1":     "NEXT",
			"HDMI 2":     "NEXT",
			"Computer 1": "NEXT",
			"Video":      "NEXT",
		},
		Status: func(context.Context, *Client, Credentials, string) (PowerState, error) {
			return PowerOn, nil
		},
		Source: d.source,
		Handle: d.handle,
	}
}

func (d *cycleDevice) handle(_ context.Context, command string, _ Device) CommandResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	if command == "NEXT" {
		d.presses++
		if d.failNext {
			d.failNext = false
			return CommandResult{Err: newError(ErrorUnreachable, "cycle press", nil)}
		}
		d.idx = (d.idx + 1) % len(d.order)
	}
	return CommandResult{OK: true}
}

func (d *cycleDevice) source(context.Context, *Client, Credentials, string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.silent {
		return "", nil
	}
	return d.order[d.idx], nil
}

func (d *cycleDevice) pressCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presses
}

func testSynchronizer() *Synchronizer {
	return NewSynchronizer(NewDispatcher(time.Second, time.Millisecond), zap.NewNop())
}

func cycleOpts(maxSteps int) CycleOptions {
	return CycleOptions{MaxSteps: maxSteps, StepDelay: 5 * time.Millisecond}
}

func TestSetSourceCycleConverges(t *testing.T) {
	assert := assert.New(t)

	dev := &cycleDevice{order: []string{"Video", "HDMI 1", "HDMI 2", "Computer 1"}}
	p := dev.profile()
	s := testSynchronizer()

	res, err := s.SetSource(context.Background(), &p, Device{IP: "x"}, "Computer 1", cycleOpts(5))
	assert.NoError(err)
	assert.True(res.Converged)
	assert.Equal(3, res.StepsTaken, "exactly three advances to reach the target")
	assert.Equal("Computer 1", res.LastSource)
	assert.Equal(3, dev.pressCount())
}

func TestSetSourceCycleAlreadyThere(t *testing.T) {
	assert := assert.New(t)

	dev := &cycleDevice{order: []string{"HDMI 1", "HDMI 2"}}
	p := dev.profile()
	s := testSynchronizer()

	res, err := s.SetSource(context.Background(), &p, Device{IP: "x"}, "hdmi1", cycleOpts(5))
	assert.NoError(err)
	assert.True(res.Converged)
	assert.Equal(0, res.StepsTaken)
	assert.Equal(0, dev.pressCount())
}

func TestSetSourceCycleBudgetExhausted(t *testing.T) {
	assert := assert.New(t)

	// The order never contains the target, so the loop can't converge.
	dev := &cycleDevice{order: []string{"Video", "HDMI 2"}}
	p := dev.profile()
	s := testSynchronizer()

	res, err := s.SetSource(context.Background(), &p, Device{IP: "x"}, "HDMI 1", cycleOpts(2))
	assert.NoError(err, "a non-converged cycle is reported, not an error")
	assert.False(res.Converged)
	assert.Equal(2, res.StepsTaken)
	assert.NotEmpty(res.LastSource)
	assert.Equal(2, dev.pressCount())
}

func TestSetSourceCycleOptimisticWhenSilent(t *testing.T) {
	assert := assert.New(t)

	// Device reports no source at all (e.g. still powering on); the loop
	// keeps pressing up to its budget.
	dev := &cycleDevice{order: []string{"Video"}, silent: true}
	p := dev.profile()
	s := testSynchronizer()

	res, err := s.SetSource(context.Background(), &p, Device{IP: "x"}, "HDMI 1", cycleOpts(3))
	assert.NoError(err)
	assert.False(res.Converged)
	assert.Equal(3, dev.pressCount())
	assert.Empty(res.LastSource)
}

func TestSetSourceCycleToleratesFailedPress(t *testing.T) {
	assert := assert.New(t)

	dev := &cycleDevice{order: []string{"Video", "HDMI 1"}, failNext: true}
	p := dev.profile()
	s := testSynchronizer()

	res, err := s.SetSource(context.Background(), &p, Device{IP: "x"}, "HDMI 1", cycleOpts(4))
	assert.NoError(err)
	assert.True(res.Converged, "a failed press mid-cycle does not abort the loop")
}

func TestSetSourceCycleCancellation(t *testing.T) {
	assert := assert.New(t)

	dev := &cycleDevice{order: []string{"Video", "HDMI 2"}}
	p := dev.profile()
	s := testSynchronizer()

	ctx, cancel := context.WithCancel(context.Background())
	opts := CycleOptions{MaxSteps: 100, StepDelay: 20 * time.Millisecond}

	done := make(chan struct{})
	var res CycleResult
	var err error
	go func() {
		res, err = s.SetSource(ctx, &p, Device{IP: "x"}, "HDMI 1", opts)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done
	pressesAtCancel := dev.pressCount()

	assert.Error(err)
	assert.False(res.Converged)
	// No further exchanges after cancellation.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(pressesAtCancel, dev.pressCount())
	assert.Less(pressesAtCancel, 10)
}

func TestSetSourceDirect(t *testing.T) {
	assert := assert.New(t)

	v := NewVirtual(true, "HDMI 1")
	p := v.Profile()
	s := testSynchronizer()

	res, err := s.SetSource(context.Background(), &p, Device{IP: "x"}, "HDBaseT", cycleOpts(5))
	assert.NoError(err)
	assert.True(res.Converged)
	assert.Equal(1, res.StepsTaken)
	assert.Equal("HDBaseT", v.ActiveSource())
}

func TestSetSourceDirectUnknownTarget(t *testing.T) {
	v := NewVirtual(true, "HDMI 1")
	p := v.Profile()
	s := testSynchronizer()

	_, err := s.SetSource(context.Background(), &p, Device{IP: "x"}, "SCART", cycleOpts(5))
	assert.Error(t, err)
	assert.IsType(t, &UnknownCommandError{}, err)
}

func TestQueryStatusDegradesToUnknown(t *testing.T) {
	p := Profile{
		Type: "broken",
		Status: func(context.Context, *Client, Credentials, string) (PowerState, error) {
			return PowerUnknown, newError(ErrorMalformedResponse, "status", nil)
		},
	}
	s := testSynchronizer()
	assert.Equal(t, PowerUnknown, s.QueryStatus(context.Background(), &p, Device{IP: "x"}))
}

func TestQuerySourceDeviceOff(t *testing.T) {
	v := NewVirtual(false, "HDMI 1")
	p := v.Profile()
	s := testSynchronizer()

	_, ok := s.QuerySource(context.Background(), &p, Device{IP: "x"})
	assert.False(t, ok)
}

func TestCycleSourcesDedup(t *testing.T) {
	p := EpsonProfile()
	sources := CycleSources(&p, "VIDEO")
	assert.Len(t, sources, 4)

	seen := map[string]bool{}
	for _, s := range sources {
		key := normalizeSource(s)
		assert.False(t, seen[key], "duplicate normalized source %s", s)
		seen[key] = true
	}
}
