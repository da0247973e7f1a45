package projector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func probeRegistry(t *testing.T, profiles ...Profile) *Registry {
	t.Helper()
	reg := NewRegistry()
	for i := range profiles {
		assert.NoError(t, reg.Register(profiles[i]))
	}
	return reg
}

func probeProfileFixture(typeName, probePath string, login Credentials) Profile {
	return Profile{
		Type:         typeName,
		DefaultLogin: login,
		Signature:    DiscoverySignature{ProbePath: probePath},
		Commands: map[string]Command{
			"power_on": {Kind: KindPower, Method: MethodGet, Path: "/cmd?", KVJoiner: "=", KJoiner: "&"},
		},
	}
}

func TestProbeOpenControlPage(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/remote.html" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reg := probeRegistry(t, probeProfileFixture("open", "/remote.html", Credentials{Username: "admin", Password: "admin"}))
	prober := NewProber(reg, time.Second, zap.NewNop())

	match := prober.Probe(context.Background(), hostOf(srv))
	if assert.NotNil(match) {
		assert.Equal("open", match.Profile)
		assert.Equal(ConfidenceResolved, match.Confidence)
		assert.Equal("admin", match.Login.Username)
	}
}

func TestProbeDefaultLoginAccepted(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "EPSONWEB" || pass != "ADMIN" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := probeRegistry(t, probeProfileFixture("guarded", "/remote.html", Credentials{Username: "EPSONWEB", Password: "ADMIN"}))
	prober := NewProber(reg, time.Second, zap.NewNop())

	match := prober.Probe(context.Background(), hostOf(srv))
	if assert.NotNil(match) {
		assert.Equal(ConfidenceResolved, match.Confidence)
		assert.Equal("EPSONWEB", match.Login.Username)
	}
}

func TestProbeUnauthorized(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	reg := probeRegistry(t, probeProfileFixture("guarded", "/remote.html", Credentials{Username: "u", Password: "p"}))
	prober := NewProber(reg, time.Second, zap.NewNop())

	match := prober.Probe(context.Background(), hostOf(srv))
	if assert.NotNil(match) {
		assert.Equal("guarded", match.Profile)
		assert.Equal(ConfidenceUnauthorized, match.Confidence)
		assert.Empty(match.Login.Username, "no working credentials to report")
	}
}

func TestProbeResolvedBeatsUnauthorized(t *testing.T) {
	assert := assert.New(t)

	// One address, two registered profiles: the first answers 401/401, the
	// second answers 200. The resolved match wins.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/first.html":
			w.WriteHeader(http.StatusUnauthorized)
		case "/second.html":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	reg := probeRegistry(t,
		probeProfileFixture("first", "/first.html", Credentials{Username: "a", Password: "a"}),
		probeProfileFixture("second", "/second.html", Credentials{Username: "b", Password: "b"}),
	)
	prober := NewProber(reg, time.Second, zap.NewNop())

	match := prober.Probe(context.Background(), hostOf(srv))
	if assert.NotNil(match) {
		assert.Equal("second", match.Profile)
		assert.Equal(ConfidenceResolved, match.Confidence)
	}
}

func TestProbeNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reg := probeRegistry(t, probeProfileFixture("any", "/remote.html", Credentials{Username: "u", Password: "p"}))
	prober := NewProber(reg, time.Second, zap.NewNop())

	assert.Nil(t, prober.Probe(context.Background(), hostOf(srv)))
}

func TestProbeUnreachableHost(t *testing.T) {
	reg := probeRegistry(t, probeProfileFixture("any", "/remote.html", Credentials{Username: "u", Password: "p"}))
	prober := NewProber(reg, 200*time.Millisecond, zap.NewNop())

	start := time.Now()
	match := prober.Probe(context.Background(), "127.0.0.1:1")
	assert.Nil(t, match)
	assert.Less(t, time.Since(start), 2*time.Second, "unreachable probes must fail fast")
}

func TestProbeSendsSignatureHeaders(t *testing.T) {
	assert := assert.New(t)

	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := probeProfileFixture("headed", "/remote.html", Credentials{Username: "u", Password: "p"})
	p.Signature.Headers = map[string]string{"Referer": "http://{ip}/remote.html"}
	reg := probeRegistry(t, p)
	prober := NewProber(reg, time.Second, zap.NewNop())

	ip := hostOf(srv)
	match := prober.Probe(context.Background(), ip)
	assert.NotNil(match)
	assert.Equal("http://"+ip+"/remote.html", gotReferer)
}

func TestScanRangeGroupsByConfidence(t *testing.T) {
	assert := assert.New(t)

	// ScanRange composes dotted addresses itself, so it can't hit an
	// httptest listener directly. Exercise the grouping with Probe against a
	// real listener instead, then check ScanRange's bounds handling on a
	// range of dead hosts.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	reg := probeRegistry(t, probeProfileFixture("guarded", "/remote.html", Credentials{Username: "u", Password: "p"}))
	prober := NewProber(reg, 200*time.Millisecond, zap.NewNop())

	match := prober.Probe(context.Background(), hostOf(srv))
	if assert.NotNil(match) {
		assert.Equal(ConfidenceUnauthorized, match.Confidence)
	}

	// A dead range produces an empty report and returns promptly.
	start := time.Now()
	report := prober.ScanRange(context.Background(), "127.1.2", 1, 8, 4)
	assert.Empty(report.Resolved)
	assert.Empty(report.Unauthorized)
	assert.Less(time.Since(start), 5*time.Second)
}

func TestScanRangeCancellation(t *testing.T) {
	reg := probeRegistry(t, probeProfileFixture("any", "/remote.html", Credentials{Username: "u", Password: "p"}))
	prober := NewProber(reg, 5*time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := prober.ScanRange(ctx, "127.1.2", 1, 32, 8)
	assert.Empty(t, report.Resolved)
	assert.Empty(t, report.Unauthorized)
}

func TestProbeSkipsProfilesWithoutSignature(t *testing.T) {
	p := probeProfileFixture("blind", "", Credentials{Username: "u", Password: "p"})
	reg := probeRegistry(t, p)
	prober := NewProber(reg, time.Second, zap.NewNop())

	assert.Nil(t, prober.Probe(context.Background(), "127.0.0.1:1"))
}
