package model

import "time"

const (
	SourceDHCP     = "dhcp"
	SourceARP      = "arp"
	SourceRestored = "restored"
)

// Host is a previously seen network client kept in the host registry.
type Host struct {
	MAC       string    `json:"mac"`
	Address   string    `json:"address"`
	HostName  string    `json:"host_name"`
	Interface string    `json:"interface"`
	Source    string    `json:"source"`
	LastSeen  time.Time `json:"last_seen"`
}
