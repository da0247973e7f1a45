package projector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Confidence grades a discovery match. A resolved match answered with the
// profile's default login; an unauthorized one has the right control page
// but rejects the default credentials.
type Confidence string

const (
	ConfidenceResolved     Confidence = "resolved"
	ConfidenceUnauthorized Confidence = "unauthorized"
)

// Match identifies which profile an address belongs to.
type Match struct {
	Profile    string
	Login      Credentials
	Confidence Confidence
}

// Candidate is one discovered device, ready to be turned into a device
// instance by the surrounding application.
type Candidate struct {
	IP         string
	Profile    string
	Confidence Confidence
	Username   string
	Password   string
}

// ScanReport groups scan results by confidence, mirroring what a discovery
// dialog shows: devices ready to add, and devices needing credentials.
type ScanReport struct {
	Resolved     []Candidate
	Unauthorized []Candidate
}

// Prober fingerprints unknown addresses against the registered profiles.
// Probes against one address run sequentially in registry order to keep the
// host-side rate reasonable; distinct addresses may be probed in parallel.
type Prober struct {
	registry *Registry
	client   *Client
	logger   *zap.Logger
}

// NewProber builds a prober. probeTimeout bounds every single probe
// exchange; discovery must fail fast, so it is configured separately from
// the command timeout.
func NewProber(registry *Registry, probeTimeout time.Duration, logger *zap.Logger) *Prober {
	return &Prober{
		registry: registry,
		client:   NewClient(probeTimeout),
		logger:   logger,
	}
}

// Probe tries each registered profile against ip and returns the first
// match, or nil when nothing matches. Network failures count as "no match"
// for that profile and probing continues; Probe never fails for an
// unreachable host. A resolved match stops probing immediately; an
// unauthorized match is kept while later profiles get a chance to resolve.
func (p *Prober) Probe(ctx context.Context, ip string) *Match {
	var unauthorized *Match
	for _, typeName := range p.registry.Types() {
		if ctx.Err() != nil {
			return unauthorized
		}
		profile, err := p.registry.Get(typeName)
		if err != nil {
			continue
		}
		match := p.probeProfile(ctx, ip, profile)
		if match == nil {
			continue
		}
		if match.Confidence == ConfidenceResolved {
			return match
		}
		if unauthorized == nil {
			unauthorized = match
		}
	}
	return unauthorized
}

func (p *Prober) probeProfile(ctx context.Context, ip string, profile *Profile) *Match {
	if profile.Signature.ProbePath == "" {
		return nil
	}
	probeURL := "http://" + ip + profile.Signature.ProbePath
	headers := profile.ProbeHeaders(ip)

	// First hit without credentials: an open control page is a resolved
	// match using the profile's known default login.
	resp, err := p.client.Do(ctx, MethodGet, probeURL, headers, Credentials{})
	if err != nil {
		return nil
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return &Match{Profile: profile.Type, Confidence: ConfidenceResolved, Login: profile.DefaultLogin}
	case resp.StatusCode == http.StatusUnauthorized:
		// The control page exists; retry with the default login.
		authResp, err := p.client.Do(ctx, MethodGet, probeURL, headers, profile.DefaultLogin)
		if err != nil || authResp.StatusCode != http.StatusOK {
			return &Match{Profile: profile.Type, Confidence: ConfidenceUnauthorized}
		}
		return &Match{Profile: profile.Type, Confidence: ConfidenceResolved, Login: profile.DefaultLogin}
	default:
		return nil
	}
}

// ScanRange sweeps one /24-style host range, probing live addresses. parallel
// bounds how many distinct addresses are probed at once; per-address probing
// stays sequential. Cancelling ctx aborts the whole batch.
func (p *Prober) ScanRange(ctx context.Context, baseNetwork string, firstHost, lastHost, parallel int) ScanReport {
	if parallel < 1 {
		parallel = 1
	}

	type result struct {
		ip    string
		match *Match
	}
	results := make([]result, lastHost-firstHost+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for host := firstHost; host <= lastHost; host++ {
		idx := host - firstHost
		ip := fmt.Sprintf("%s.%d", baseNetwork, host)
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if !p.alive(gctx, ip) {
				return nil
			}
			results[idx] = result{ip: ip, match: p.Probe(gctx, ip)}
			return nil
		})
	}
	_ = g.Wait()

	var report ScanReport
	for _, r := range results {
		if r.match == nil {
			continue
		}
		candidate := Candidate{
			IP:         r.ip,
			Profile:    r.match.Profile,
			Confidence: r.match.Confidence,
			Username:   r.match.Login.Username,
			Password:   r.match.Login.Password,
		}
		if r.match.Confidence == ConfidenceResolved {
			report.Resolved = append(report.Resolved, candidate)
		} else {
			report.Unauthorized = append(report.Unauthorized, candidate)
		}
	}
	p.logger.Debug("scan finished",
		zap.Int("resolved", len(report.Resolved)),
		zap.Int("unauthorized", len(report.Unauthorized)))
	return report
}

// alive checks whether the address talks HTTP at all. Any status code
// counts; only transport failures mean dead.
func (p *Prober) alive(ctx context.Context, ip string) bool {
	_, err := p.client.Do(ctx, MethodGet, "http://"+ip+"/", nil, Credentials{})
	return err == nil
}
