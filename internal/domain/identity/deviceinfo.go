package identity

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
)

// DeviceInfo describes the hardware/OS environment reported alongside
// pairing requests and exposed by the diagnostics API.
type DeviceInfo struct {
	Hostname      string `json:"hostname,omitempty"`
	Platform      string `json:"platform,omitempty"`
	OSVersion     string `json:"os_version,omitempty"`
	Arch          string `json:"arch"`
	UptimeSeconds uint64 `json:"uptime_seconds,omitempty"`
}

// Info gathers device details best-effort; probe failures leave fields
// empty rather than failing the pairing flow.
func Info() DeviceInfo {
	info := DeviceInfo{Arch: runtime.GOARCH}

	stats, err := host.Info()
	if err != nil {
		return info
	}

	info.Hostname = stats.Hostname
	info.Platform = stats.Platform
	info.OSVersion = stats.PlatformVersion
	info.UptimeSeconds = stats.Uptime
	return info
}
