package status

import (
	"testing"

	"vpnpanel/internal/model"
)

func TestMapServiceStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want model.NodeStatus
	}{
		{"running maps to online", "running", model.NodeStatusOnline},
		{"stopped maps to offline", "stopped", model.NodeStatusOffline},
		{"empty string maps to unknown", "", model.NodeStatusUnknown},
		{"unrecognized value maps to unknown", "restarting", model.NodeStatusUnknown},
		{"case sensitive", "Running", model.NodeStatusUnknown},
		{"whitespace not trimmed", " running", model.NodeStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapServiceStatus(tt.raw); got != tt.want {
				t.Errorf("MapServiceStatus(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMapCertificateStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want model.VpnCertStatus
	}{
		{"valid", "VALID", model.VpnCertStatusValid},
		{"revoked", "REVOKED", model.VpnCertStatusRevoked},
		{"expired", "EXPIRED", model.VpnCertStatusExpired},
		{"pending", "PENDING", model.VpnCertStatusPending},
		{"empty string maps to unknown", "", model.VpnCertStatusUnknown},
		{"unrecognized value maps to unknown", "GOOD", model.VpnCertStatusUnknown},
		{"lowercase is not recognized", "valid", model.VpnCertStatusUnknown},
		{"mixed case is not recognized", "Revoked", model.VpnCertStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapCertificateStatus(tt.raw); got != tt.want {
				t.Errorf("MapCertificateStatus(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
