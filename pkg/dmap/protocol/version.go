package protocol

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// ProtocolVersion identifies the frame layout and chunk encoding.
const ProtocolVersion = "v1.0.0"

// IsCompatibleVersion reports whether two versions share a semver major.
func IsCompatibleVersion(version, reference string) (bool, error) {
	if !semver.IsValid(version) {
		return false, fmt.Errorf("invalid version: %s", version)
	}
	if !semver.IsValid(reference) {
		return false, fmt.Errorf("invalid reference version: %s", reference)
	}

	return semver.Major(version) == semver.Major(reference), nil
}

// CompatibilityError returns a user-facing message for a version mismatch.
func CompatibilityError(version string) string {
	return fmt.Sprintf(
		"version %s is incompatible with protocol %s. Required version: %s.x.x",
		version, ProtocolVersion, semver.Major(ProtocolVersion),
	)
}
