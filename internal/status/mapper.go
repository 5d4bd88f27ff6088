// Package status translates raw agent-reported status strings into
// canonical domain enums. Agents speak a small free-text vocabulary
// ("running", the contents of an OpenVPN index file); these mappers are
// the only place that vocabulary is interpreted, and they are total:
// any unrecognized input maps to UNKNOWN, never an error.
package status

import "vpnpanel/internal/model"

// MapServiceStatus maps the agent's reported service state to node health
func MapServiceStatus(raw string) model.NodeStatus {
	switch raw {
	case "running":
		return model.NodeStatusOnline
	case "stopped":
		return model.NodeStatusOffline
	default:
		return model.NodeStatusUnknown
	}
}

// MapCertificateStatus maps a reported certificate state to the canonical
// enum. Matching is exact, including case: "valid" is not VALID.
func MapCertificateStatus(raw string) model.VpnCertStatus {
	switch raw {
	case "VALID":
		return model.VpnCertStatusValid
	case "REVOKED":
		return model.VpnCertStatusRevoked
	case "EXPIRED":
		return model.VpnCertStatusExpired
	case "PENDING":
		return model.VpnCertStatusPending
	default:
		return model.VpnCertStatusUnknown
	}
}
