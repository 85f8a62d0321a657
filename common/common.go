// Package common holds build-time identifiers shared by every binary.
package common

// PackageName is used as the metrics namespace and in log attributes.
const PackageName = "noisyagg"

// Version is set at build time via -ldflags.
var Version = "dev"
