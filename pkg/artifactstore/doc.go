// Package artifactstore persists trained forecasters as versioned, checksummed files,
// one named slot per model.
package artifactstore
