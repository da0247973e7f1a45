package projector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// epsonStatusBody builds a status page whose source value sits in the
// positional window the parser expects after the "Source" label.
func epsonStatusBody(source string) string {
	head := "<html><body><td>Source"
	idx := strings.Index(head, "Source")
	pad := strings.Repeat("x", idx+155-len(head))
	return head + pad + source + "</td></body></html>"
}

func TestParseEpsonSource(t *testing.T) {
	assert := assert.New(t)

	source, ok := parseEpsonSource(epsonStatusBody("HDMI 1"))
	assert.True(ok)
	assert.Equal("HDMI 1", source)

	source, ok = parseEpsonSource(epsonStatusBody("Computer 1"))
	assert.True(ok)
	assert.Equal("Computer 1", source)

	_, ok = parseEpsonSource("<html>no label here</html>")
	assert.False(ok)

	_, ok = parseEpsonSource("Source")
	assert.False(ok, "label with no value window")
}

func TestEpsonStatusAndSource(t *testing.T) {
	assert := assert.New(t)

	body := epsonStatusBody("HDMI 1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPost, r.Method)
		assert.Equal(epsonControlPage, r.URL.Path)
		assert.NoError(r.ParseForm())
		assert.Equal("05", r.PostForm.Get("page"))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := NewClient(time.Second)
	creds := Credentials{Username: "EPSONWEB", Password: "ADMIN"}

	state, err := epsonStatus(context.Background(), client, creds, hostOf(srv))
	assert.NoError(err)
	assert.Equal(PowerOn, state)

	source, err := epsonSource(context.Background(), client, creds, hostOf(srv))
	assert.NoError(err)
	assert.Equal("HDMI 1", source)
}

func TestEpsonStandby(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>" + epsonStandbyText + "</html>"))
	}))
	defer srv.Close()

	client := NewClient(time.Second)

	state, err := epsonStatus(context.Background(), client, Credentials{}, hostOf(srv))
	assert.NoError(err)
	assert.Equal(PowerOff, state)

	// A standby device has no active source; that is not an error.
	source, err := epsonSource(context.Background(), client, Credentials{}, hostOf(srv))
	assert.NoError(err)
	assert.Empty(source)
}

func TestEpsonSourceMalformedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>something unexpected</html>"))
	}))
	defer srv.Close()

	client := NewClient(time.Second)
	_, err := epsonSource(context.Background(), client, Credentials{}, hostOf(srv))
	assert.Equal(t, ErrorMalformedResponse, ErrorKindOf(err))
}

func TestChristieStatusAndSource(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPost, r.Method)
		query := r.URL.RawQuery
		switch {
		case strings.Contains(query, "c:24576"): // power query
			_, _ = w.Write([]byte(`[{"id":1,"val":[1]}]`))
		case strings.Contains(query, "c:8192"): // source query
			_, _ = w.Write([]byte(`[{"id":2,"val":[17]}]`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	client := NewClient(time.Second)

	state, err := christieStatus(context.Background(), client, Credentials{}, hostOf(srv))
	assert.NoError(err)
	assert.Equal(PowerOn, state)

	source, err := christieSource(context.Background(), client, Credentials{}, hostOf(srv))
	assert.NoError(err)
	assert.Equal("HDBaseT", source)
}

func TestChristieQueryMalformed(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	client := NewClient(time.Second)

	state, err := christieStatus(context.Background(), client, Credentials{}, hostOf(srv))
	assert.Equal(PowerUnknown, state)
	assert.Equal(ErrorMalformedResponse, ErrorKindOf(err))
}

func TestChristieUnknownSourceValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":2,"val":[999]}]`))
	}))
	defer srv.Close()

	client := NewClient(time.Second)
	_, err := christieSource(context.Background(), client, Credentials{}, hostOf(srv))
	assert.Equal(t, ErrorMalformedResponse, ErrorKindOf(err))
}
