// Package common contains shared constants and sentinel errors used across
// IntakeKeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// SectionStatusKey is the document key holding the legacy per-section
// status map.
const SectionStatusKey = "sectionStatus"
