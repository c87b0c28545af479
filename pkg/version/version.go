// Package version provides version information for the price-engine application.
package version

// Version is the current version of the price-engine application.
const Version = "0.3.0"

// AgentString returns the full agent string with versioning.
// Format: price-engine/v{version}
func AgentString() string {
	return "price-engine/v" + Version
}
