package projector

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Clock renders the "$$time" parameter. Vendor tables expect a millisecond
// timestamp as a decimal string.
type Clock interface {
	NowMillis() string
}

type systemClock struct{}

func (systemClock) NowMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func SystemClock() Clock {
	return systemClock{}
}

// CommandResult is the outcome of one executed command. Transient device
// errors are carried in Err; OK is false whenever Err is set.
type CommandResult struct {
	OK          bool
	StatusCode  int
	RawResponse []byte
	Err         *Error
}

// Dispatcher executes named commands against device instances. It performs
// no retry of its own: only the caller knows whether resending a command is
// semantically safe.
type Dispatcher struct {
	client         *Client
	clock          Clock
	duplicateDelay time.Duration
}

// NewDispatcher builds a dispatcher whose exchanges are bounded by
// commandTimeout. duplicateDelay is the pause between the two sends of a
// Duplicate command, giving devices that drop the first packet after idle
// time to wake up.
func NewDispatcher(commandTimeout, duplicateDelay time.Duration) *Dispatcher {
	return &Dispatcher{
		client:         NewClient(commandTimeout),
		clock:          systemClock{},
		duplicateDelay: duplicateDelay,
	}
}

// WithClock replaces the timestamp source. Used by tests to pin "$$time".
func (d *Dispatcher) WithClock(clock Clock) *Dispatcher {
	d.clock = clock
	return d
}

// Client exposes the underlying HTTP helper so the synchronizer and prober
// can share its timeout discipline with profile query functions.
func (d *Dispatcher) Client() *Client {
	return d.client
}

// RenderParams serializes a command's ordered params with the vendor's
// joiners. Rendering is pure except for the timestamp variant, which takes a
// fresh value from the clock on every call.
func RenderParams(cmd Command, clock Clock) string {
	var b strings.Builder
	for _, p := range cmd.Params {
		value := p.Value.literal
		if p.Value.IsTimestamp() {
			value = clock.NowMillis()
		}
		b.WriteString(p.Key)
		b.WriteString(cmd.KVJoiner)
		b.WriteString(value)
		b.WriteString(cmd.KJoiner)
	}
	return strings.TrimSuffix(b.String(), cmd.KJoiner)
}

// CommandURL renders the full request URL for one send. Both GET and POST
// dialects in the wild carry the serialized params in the URL.
func CommandURL(cmd Command, ip string, clock Clock) string {
	return "http://" + ip + cmd.Path + RenderParams(cmd, clock)
}

// Execute runs one named command against one device. The returned error is
// non-nil only for programming/configuration mistakes (unknown command);
// transient device errors come back inside the CommandResult.
func (d *Dispatcher) Execute(ctx context.Context, p *Profile, name string, device Device) (CommandResult, error) {
	cmd, ok := p.Commands[name]
	if !ok {
		return CommandResult{}, &UnknownCommandError{Profile: p.Type, Command: name}
	}

	// In-process profiles bypass HTTP entirely.
	if p.Handle != nil {
		return p.Handle(ctx, name, device), nil
	}

	first := d.send(ctx, p, cmd, device)
	if cmd.Duplicate {
		select {
		case <-time.After(d.duplicateDelay):
		case <-ctx.Done():
			return first, nil
		}
		// Second send re-renders, so it may carry a newer timestamp. Its
		// outcome never overrides the first's: first failure wins.
		d.send(ctx, p, cmd, device)
	}
	return first, nil
}

func (d *Dispatcher) send(ctx context.Context, p *Profile, cmd Command, device Device) CommandResult {
	rawURL := CommandURL(cmd, device.IP, d.clock)
	resp, err := d.client.Do(ctx, cmd.Method, rawURL, p.ProbeHeaders(device.IP), p.Login(device))
	if err != nil {
		return CommandResult{Err: err}
	}
	if !resp.Success() {
		return CommandResult{
			StatusCode:  resp.StatusCode,
			RawResponse: resp.Body,
			Err:         newError(ErrorDeviceRejected, "send command", nil),
		}
	}
	return CommandResult{
		OK:          true,
		StatusCode:  resp.StatusCode,
		RawResponse: resp.Body,
	}
}
