package devicelog

import (
	"os"
	"strings"
)

const machineIDPath = "/etc/machine-id"

// Identity is the device identity stamped onto device-log snapshots.
// Platform is the device type the bridge fronts ("android" or "ios").
type Identity struct {
	Platform string
	ID       string
}

// Suffix returns the identity's short addressing suffix: the last five
// alphanumeric characters of the device ID, or "-----" when the ID carries
// no alphanumeric characters. Comparisons are case-insensitive; callers
// lower-case both sides.
func (id Identity) Suffix() string {
	return SuffixOf(id.ID)
}

// ResolveIdentity builds the device identity. An explicit override wins;
// otherwise the machine ID is used, then the hostname.
func ResolveIdentity(platform, override string) Identity {
	id := strings.TrimSpace(override)
	if id == "" {
		id = machineID()
	}
	if id == "" {
		if host, err := os.Hostname(); err == nil {
			id = host
		}
	}
	if id == "" {
		id = "unknown"
	}

	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		platform = "android"
	}
	return Identity{Platform: platform, ID: id}
}

func machineID() string {
	b, err := os.ReadFile(machineIDPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// SuffixOf implements the suffix rule for an arbitrary device ID.
func SuffixOf(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	if normalized == "" {
		return "-----"
	}
	if len(normalized) <= 5 {
		return normalized
	}
	return normalized[len(normalized)-5:]
}
