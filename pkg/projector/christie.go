package projector

import (
	"context"
	"encoding/json"
	"strconv"
)

const christiePath = "/cgi-bin/webctrl.cgi.elf?&"

// christieCommand builds one entry of the Christie table. The web control
// protocol serializes everything as "p:<page>,c:<code>,v:<argc>,v:<arg>"
// appended to the CGI path, for POST as well as GET.
func christieCommand(kind CommandKind, code int) Command {
	return Command{
		Kind:      kind,
		Method:    MethodPost,
		Duplicate: false,
		Path:      christiePath,
		KVJoiner:  ":",
		KJoiner:   ",",
		Params: []Param{
			KV("p", strconv.Itoa(0x01)),
			KV("c", strconv.Itoa(0x1213)),
			KV("v", strconv.Itoa(2)),
			KV("v", strconv.Itoa(code)),
		},
	}
}

// christieSourceNames maps the numeric input reported by the status endpoint
// to the logical source name shown to users.
var christieSourceNames = map[int]string{
	3:  "HDMI 1",
	13: "HDMI 2",
	14: "HDMI 3",
	16: "HDMI 4",
	8:  "DVI-I",
	9:  "DVI-D",
	17: "HDBaseT",
	18: "SDI",
	19: "DisplayPort",
}

// ChristieProfile describes the Christie web-control dialect: direct
// per-source commands and a JSON status endpoint.
func ChristieProfile() Profile {
	return Profile{
		Type:         "christie",
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
		Status: christieStatus,
		Source: christieSource,
	}
}

// christieQueryValue runs one read-only "p:2" query and returns the first
// value of the reply. Replies look like [{"id":...,"val":[1]}].
func christieQueryValue(ctx context.Context, client *Client, ip string, code int) (int, error) {
	query := "p" + ":" + strconv.Itoa(0x02) + "," + "c" + ":" + strconv.Itoa(code) + "," + "v" + ":" + strconv.Itoa(0)
	rawURL := "http://" + ip + christiePath + query

	resp, err := client.Do(ctx, MethodPost, rawURL, nil, Credentials{})
	if err != nil {
		return 0, err
	}
	if !resp.Success() {
		return 0, newError(ErrorDeviceRejected, "christie query", nil)
	}
	var payload []struct {
		Val []int `json:"val"`
	}
	if jsonErr := json.Unmarshal(resp.Body, &payload); jsonErr != nil {
		return 0, newError(ErrorMalformedResponse, "christie query", jsonErr)
	}
	if len(payload) == 0 || len(payload[0].Val) == 0 {
		return 0, newError(ErrorMalformedResponse, "christie query", nil)
	}
	return payload[0].Val[0], nil
}

func christieStatus(ctx context.Context, client *Client, _ Credentials, ip string) (PowerState, error) {
	value, err := christieQueryValue(ctx, client, ip, 0x6000)
	if err != nil {
		return PowerUnknown, err
	}
	if value == 1 {
		return PowerOn, nil
	}
	return PowerOff, nil
}

func christieSource(ctx context.Context, client *Client, _ Credentials, ip string) (string, error) {
	value, err := christieQueryValue(ctx, client, ip, 0x2000)
	if err != nil {
		return "", err
	}
	name, ok := christieSourceNames[value]
	if !ok {
		return "", newError(ErrorMalformedResponse, "christie source", nil)
	}
	return name, nil
}
