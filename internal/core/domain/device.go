package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"beamctl/pkg/projector"
)

// DeviceInstance is one configured projector: an address bound to a profile
// type, with optional credential overrides.
type DeviceInstance struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IP          string `json:"ip"`
	ProfileType string `json:"type"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
}

func (d DeviceInstance) ToProjector() projector.Device {
	return projector.Device{
		Name:     d.Name,
		IP:       d.IP,
		Type:     d.ProfileType,
		Username: d.Username,
		Password: d.Password,
	}
}

var idInvalidChars = regexp.MustCompile("[^a-z0-9_]+")

// DeviceID derives a stable identifier from a device name and address. The
// slug keeps topics readable; the hash keeps renamed duplicates apart.
func DeviceID(name, ip string) string {
	slug := idInvalidChars.ReplaceAllString(strings.ToLower(name), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "projector"
	}
	return fmt.Sprintf("%s_%s", slug, md5HashShort(ip))
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
