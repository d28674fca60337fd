package model

import (
	"strings"
	"time"
)

const (
	DefaultScanInterval      = 30 * time.Second
	MinScanInterval          = 5 * time.Second
	DefaultTrackHostsTimeout = 180 * time.Second
	DefaultRouterTimeout     = 10 * time.Second
	DefaultUnit              = "Kbps"
)

// RouterConfig is the option snapshot the controller reads every cycle.
type RouterConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"-" yaml:"password"`
	UseTLS      bool   `json:"ssl" yaml:"ssl"`
	VerifyTLS   bool   `json:"verify_tls" yaml:"verify_tls"`
	LoginMethod string `json:"login_method" yaml:"login_method"`

	ScanIntervalSec      int    `json:"scan_interval_sec" yaml:"scan_interval_sec"`
	Unit                 string `json:"unit_of_measurement" yaml:"unit_of_measurement"`
	TrackARP             *bool  `json:"track_arp,omitempty" yaml:"track_arp"`
	TrackHosts           bool   `json:"track_hosts" yaml:"track_hosts"`
	TrackHostsTimeoutSec int    `json:"track_hosts_timeout_sec" yaml:"track_hosts_timeout_sec"`
	TrackAccounting      bool   `json:"track_accounting" yaml:"track_accounting"`
	TimeoutSec           int    `json:"timeout_sec" yaml:"timeout_sec"`
}

func (c RouterConfig) ScanInterval() time.Duration {
	if c.ScanIntervalSec <= 0 {
		return DefaultScanInterval
	}
	interval := time.Duration(c.ScanIntervalSec) * time.Second
	if interval < MinScanInterval {
		return MinScanInterval
	}
	return interval
}

func (c RouterConfig) TrackHostsTimeout() time.Duration {
	if c.TrackHostsTimeoutSec <= 0 {
		return DefaultTrackHostsTimeout
	}
	return time.Duration(c.TrackHostsTimeoutSec) * time.Second
}

func (c RouterConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return DefaultRouterTimeout
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// ARPTracking reports whether interface client tracking is on; it
// defaults to true when unset.
func (c RouterConfig) ARPTracking() bool {
	return c.TrackARP == nil || *c.TrackARP
}

// DisplayUnit returns the configured traffic unit label.
func (c RouterConfig) DisplayUnit() string {
	unit := strings.TrimSpace(c.Unit)
	if unit == "" {
		return DefaultUnit
	}
	return unit
}
