package build

import "fmt"

// AppVersion is the semantic version of the payment tool.
const AppVersion = "0.1.0"

// Commit is the git commit the binary was built from. It is set with
// -ldflags "-X".
var Commit string

// DeploymentType selects the logging behaviour compiled into the binary.
type DeploymentType byte

const (
	// Development builds let packages log to stderr without a backend,
	// at the level picked by the loglevel build tags.
	Development DeploymentType = iota

	// Production builds stay silent until the binary wires a backend.
	Production
)

// String returns a human readable name for a build type.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return "unknown"
	}
}

// Version returns the version string printed by --version.
func Version() string {
	v := fmt.Sprintf("%s %s", AppVersion, Deployment)
	if Commit != "" {
		v += " commit=" + Commit
	}

	return v
}
