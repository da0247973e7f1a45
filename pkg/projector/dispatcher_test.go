package projector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fixedClock struct {
	value string
}

func (c fixedClock) NowMillis() string {
	return c.value
}

func TestRenderParamsFixedClock(t *testing.T) {
	assert := assert.New(t)

	cmd := Command{
		Kind:     KindPower,
		Method:   MethodGet,
		Path:     "/cgi-bin/directsend?",
		KVJoiner: "=",
		KJoiner:  "&",
		Params: []Param{
			KV("KEY", "3B"),
			KV("_", "$$time"),
		},
	}

	first := RenderParams(cmd, fixedClock{"1000"})
	second := RenderParams(cmd, fixedClock{"1000"})
	assert.Equal(first, second, "rendering is idempotent with a fixed clock")
	assert.Equal("KEY=3B&_=1000", first)

	later := RenderParams(cmd, fixedClock{"1001"})
	assert.Equal("KEY=3B&_=1001", later, "only the timestamp field differs")
}

func TestRenderParamsVendorJoiners(t *testing.T) {
	cmd := ChristieProfile().Commands["HDMI1"]
	rendered := RenderParams(cmd, fixedClock{"0"})
	assert.Equal(t, "p:1,c:4627,v:2,v:18", rendered)
}

func TestTimestampVariantNotMagicString(t *testing.T) {
	assert := assert.New(t)

	assert.True(KV("_", "$$time").Value.IsTimestamp())
	assert.False(Literal("$$time").IsTimestamp(), "a literal $$time stays literal")
}

func TestExecuteSingleSend(t *testing.T) {
	assert := assert.New(t)

	var hits atomic.Int32
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotPath = r.URL.RequestURI()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := EpsonProfile()
	d := NewDispatcher(time.Second, time.Millisecond).WithClock(fixedClock{"42"})
	res, err := d.Execute(context.Background(), &p, "power_on", Device{IP: hostOf(srv)})

	assert.NoError(err)
	assert.True(res.OK)
	assert.Nil(res.Err)
	assert.Equal(int32(1), hits.Load())
	assert.Equal("/cgi-bin/directsend?KEY=3B&_=42", gotPath)
}

func TestExecuteDuplicateSendsTwiceFirstFailureWins(t *testing.T) {
	assert := assert.New(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := EpsonProfile()
	d := NewDispatcher(time.Second, time.Millisecond)
	res, err := d.Execute(context.Background(), &p, "power_off", Device{IP: hostOf(srv)})

	assert.NoError(err)
	assert.Equal(int32(2), hits.Load(), "duplicate command issues exactly two exchanges")
	assert.False(res.OK)
	assert.NotNil(res.Err)
	assert.Equal(ErrorDeviceRejected, res.Err.Kind)
}

func TestExecuteUnknownCommand(t *testing.T) {
	p := EpsonProfile()
	d := NewDispatcher(time.Second, time.Millisecond)

	_, err := d.Execute(context.Background(), &p, "WARP", Device{IP: "127.0.0.1:1"})
	assert.Error(t, err)
	assert.IsType(t, &UnknownCommandError{}, err)
}

func TestExecuteUnreachable(t *testing.T) {
	assert := assert.New(t)

	p := EpsonProfile()
	d := NewDispatcher(200*time.Millisecond, time.Millisecond)

	start := time.Now()
	res, err := d.Execute(context.Background(), &p, "power_on", Device{IP: "127.0.0.1:1"})
	assert.NoError(err)
	assert.False(res.OK)
	assert.NotNil(res.Err)
	assert.Equal(ErrorUnreachable, res.Err.Kind)
	assert.Less(time.Since(start), 2*time.Second, "timed-out exchange is never left pending")
}

func TestExecuteDeviceRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := EpsonProfile()
	d := NewDispatcher(time.Second, time.Millisecond)
	res, err := d.Execute(context.Background(), &p, "power_on", Device{IP: hostOf(srv)})

	assert.NoError(t, err)
	assert.NotNil(t, res.Err)
	assert.Equal(t, ErrorDeviceRejected, res.Err.Kind)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestExecuteInProcessBypass(t *testing.T) {
	assert := assert.New(t)

	v := NewVirtual(false, "HDMI 1")
	p := v.Profile()
	d := NewDispatcher(time.Second, time.Millisecond)

	res, err := d.Execute(context.Background(), &p, "power_on", Device{IP: "10.0.0.9"})
	assert.NoError(err)
	assert.True(res.OK)
	assert.True(v.Powered())

	res, err = d.Execute(context.Background(), &p, "HDMI2", Device{IP: "10.0.0.9"})
	assert.NoError(err)
	assert.True(res.OK)
	assert.Equal("HDMI 2", v.ActiveSource())
}

func TestExecuteSendsProfileHeaders(t *testing.T) {
	var referer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := EpsonProfile()
	ip := hostOf(srv)
	d := NewDispatcher(time.Second, time.Millisecond)
	_, err := d.Execute(context.Background(), &p, "power_on", Device{IP: ip})

	assert.NoError(t, err)
	assert.Equal(t, "http://"+ip+"/cgi-bin/webconf", referer)
}

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}
