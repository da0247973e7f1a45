package projector

import (
	"context"
	"fmt"
	"strings"
)

// CommandKind controls how a command's result is classified and how the
// surrounding application highlights state.
type CommandKind string

const (
	KindPower       CommandKind = "power"
	KindSource      CommandKind = "source"
	KindSourceCycle CommandKind = "source_cycle"
	KindFeature     CommandKind = "feature"
	KindToggle      CommandKind = "toggle"
	KindAction      CommandKind = "action"
)

var validKinds = map[CommandKind]bool{
	KindPower:       true,
	KindSource:      true,
	KindSourceCycle: true,
	KindFeature:     true,
	KindToggle:      true,
	KindAction:      true,
}

// Method is the HTTP method of a command exchange.
type Method string

const (
	MethodGet  Method = "get"
	MethodPost Method = "post"
)

// timePlaceholder is the literal vendor tables use to request a fresh
// millisecond timestamp at send time.
const timePlaceholder = "$$time"

// ParamValue is either a literal string or the timestamp variant rendered at
// send time. Modeling the timestamp as a variant instead of a magic string
// means a vendor parameter that happens to contain "$$time" as data can
// still be expressed with Literal.
type ParamValue struct {
	literal     string
	isTimestamp bool
}

func Literal(v string) ParamValue {
	return ParamValue{literal: v}
}

func Timestamp() ParamValue {
	return ParamValue{isTimestamp: true}
}

func (v ParamValue) IsTimestamp() bool {
	return v.isTimestamp
}

// Param is one ordered key/value pair of a command.
type Param struct {
	Key   string
	Value ParamValue
}

// KV builds a Param from a vendor table entry, mapping the "$$time"
// placeholder to the timestamp variant.
func KV(key, value string) Param {
	if value == timePlaceholder {
		return Param{Key: key, Value: Timestamp()}
	}
	return Param{Key: key, Value: Literal(value)}
}

// Command is the declarative recipe for one remote-control action.
type Command struct {
	Kind      CommandKind
	Method    Method
	Duplicate bool
	Path      string
	KVJoiner  string
	KJoiner   string
	Params    []Param
}

// Credentials is a username/password pair. Profile defaults can be
// overridden per device instance.
type Credentials struct {
	Username string
	Password string
}

// DiscoverySignature fingerprints a device over HTTP. Header values may
// contain the "{ip}" placeholder, substituted with the probed address.
type DiscoverySignature struct {
	ProbePath string
	Headers   map[string]string
}

// Device is one projector instance as supplied by the surrounding
// application. The core treats it as an immutable value per call.
type Device struct {
	Name     string
	IP       string
	Type     string
	Username string
	Password string
}

// PowerState is the device-reported power state.
type PowerState string

const (
	PowerOn      PowerState = "on"
	PowerOff     PowerState = "off"
	PowerUnknown PowerState = "unknown"
)

// StatusFunc queries the device's power state. Must not mutate device state.
type StatusFunc func(ctx context.Context, client *Client, creds Credentials, ip string) (PowerState, error)

// SourceFunc queries the device's active source. Must not mutate device
// state. Returns "" when the device is off.
type SourceFunc func(ctx context.Context, client *Client, creds Credentials, ip string) (string, error)

// HandleFunc executes a command without any HTTP exchange. Profiles that set
// it bypass the network entirely, which is how simulated devices work.
type HandleFunc func(ctx context.Context, command string, device Device) CommandResult

// Profile describes one projector vendor's HTTP dialect: credentials
// template, discovery probe, command table and query functions. Profiles are
// immutable after registration.
type Profile struct {
	Type         string
	DefaultLogin Credentials
	Signature    DiscoverySignature
	Commands     map[string]Command

	// CycleTargets maps a logical source name to the cycle command used to
	// advance toward it, for vendors without direct per-source addressing.
	CycleTargets map[string]string

	Status StatusFunc
	Source SourceFunc

	// Handle, when set, replaces HTTP dispatch for every command.
	Handle HandleFunc
}

// Validate checks the profile invariants: known command kinds, and every
// source_cycle command reachable through CycleTargets.
func (p *Profile) Validate() error {
	if p.Type == "" {
		return &ConfigError{Profile: p.Type, Reason: "empty type name"}
	}
	if len(p.Commands) == 0 {
		return &ConfigError{Profile: p.Type, Reason: "empty command table"}
	}
	for name, cmd := range p.Commands {
		if !validKinds[cmd.Kind] {
			return &ConfigError{Profile: p.Type, Reason: fmt.Sprintf("command %q has invalid kind %q", name, cmd.Kind)}
		}
		if cmd.Method != MethodGet && cmd.Method != MethodPost {
			return &ConfigError{Profile: p.Type, Reason: fmt.Sprintf("command %q has invalid method %q", name, cmd.Method)}
		}
	}
	cycled := map[string]bool{}
	for target, cmdName := range p.CycleTargets {
		cmd, ok := p.Commands[cmdName]
		if !ok {
			return &ConfigError{Profile: p.Type, Reason: fmt.Sprintf("cycle target %q maps to unknown command %q", target, cmdName)}
		}
		if cmd.Kind != KindSourceCycle {
			return &ConfigError{Profile: p.Type, Reason: fmt.Sprintf("cycle target %q maps to command %q of kind %q", target, cmdName, cmd.Kind)}
		}
		cycled[cmdName] = true
	}
	for name, cmd := range p.Commands {
		if cmd.Kind == KindSourceCycle && !cycled[name] {
			return &ConfigError{Profile: p.Type, Reason: fmt.Sprintf("source_cycle command %q is not reachable through any cycle target", name)}
		}
	}
	return nil
}

// Login resolves the effective credentials for a device: instance values
// override the profile defaults.
func (p *Profile) Login(device Device) Credentials {
	creds := p.DefaultLogin
	if device.Username != "" {
		creds.Username = device.Username
	}
	if device.Password != "" {
		creds.Password = device.Password
	}
	return creds
}

// ProbeHeaders renders the discovery signature headers for one address.
func (p *Profile) ProbeHeaders(ip string) map[string]string {
	return renderHeaders(p.Signature.Headers, ip)
}

func renderHeaders(headers map[string]string, ip string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = strings.ReplaceAll(v, "{ip}", ip)
	}
	return out
}

// SourceEqual compares logical source names ignoring case, spaces and
// dashes, so "HDMI 1", "hdmi-1" and "HDMI1" all name the same input.
func SourceEqual(a, b string) bool {
	return normalizeSource(a) == normalizeSource(b)
}

func normalizeSource(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ToLower(s)
}
