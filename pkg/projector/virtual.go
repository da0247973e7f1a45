package projector

import (
	"context"
	"sync"
)

// Virtual is a fully in-process projector that mimics the Christie command
// surface without any network I/O. Its profile sets Handle, so the
// dispatcher bypasses HTTP entirely, which makes multi-step flows
// deterministic in tests and lets an installation demo the UI without
// hardware.
type Virtual struct {
	mu       sync.Mutex
	power    bool
	source   string
	features map[string]bool
}

func NewVirtual(powerOn bool, source string) *Virtual {
	return &Virtual{
		power:  powerOn,
		source: source,
		features: map[string]bool{
			"FREEZE": false,
			"MUTE":   false,
			"BLANK":  false,
		},
	}
}

// virtualSourceNames maps direct source commands to the reported source
// name, mirroring the Christie dialect.
var virtualSourceNames = map[string]string{
	"HDMI1":     "HDMI 1",
	"HDMI2":     "HDMI 2",
	"HDBASET":   "HDBaseT",
	"COMPUTER1": "Computer 1",
}

// Profile exposes the simulated device as a regular profile. Each call
// shares the same underlying state.
func (v *Virtual) Profile() Profile {
	return Profile{
		Type:         "virtual",
		DefaultLogin: Credentials{Username: "user", Password: "1978"},
		Signature: DiscoverySignature{
			ProbePath: "/html/remote.html",
		},
		Commands: map[string]Command{
			"power_on":  christieCommand(KindPower, 0x001D),
			"power_off": christieCommand(KindPower, 0x001E),
			"HDBASET":   christieCommand(KindSource, 0x001F),
			"HDMI1":     christieCommand(KindSource, 0x0012),
			"HDMI2":     christieCommand(KindSource, 0x000F),
			"COMPUTER1": christieCommand(KindSource, 0x0010),
			"FREEZE":    christieCommand(KindFeature, 0x00B4),
			"MUTE":      christieCommand(KindFeature, 0x0052),
			"BLANK":     christieCommand(KindFeature, 0x0041),
		},
		Status: v.status,
		Source: v.currentSource,
		Handle: v.handle,
	}
}

func (v *Virtual) handle(_ context.Context, command string, _ Device) CommandResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case command == "power_on":
		v.power = true
	case command == "power_off":
		v.power = false
	default:
		if !v.power {
			return CommandResult{Err: newError(ErrorDeviceRejected, "virtual command", nil)}
		}
		if source, ok := virtualSourceNames[command]; ok {
			v.source = source
		} else if _, ok := v.features[command]; ok {
			v.features[command] = !v.features[command]
		}
	}
	return CommandResult{OK: true}
}

func (v *Virtual) status(context.Context, *Client, Credentials, string) (PowerState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.power {
		return PowerOn, nil
	}
	return PowerOff, nil
}

func (v *Virtual) currentSource(context.Context, *Client, Credentials, string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.power {
		return "", nil
	}
	return v.source, nil
}

// Powered reports the simulated power state. Test helper.
func (v *Virtual) Powered() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.power
}

// ActiveSource reports the simulated source. Test helper.
func (v *Virtual) ActiveSource() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.source
}

// Feature reports a simulated feature toggle. Test helper.
func (v *Virtual) Feature(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.features[name]
}
