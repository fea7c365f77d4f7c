// ABOUTME: Build identity constants for the amora binaries
// ABOUTME: Version is reported in the bridge's startup log
package version

// Version is the semantic version of this build.
const Version = "0.3.0"

// Product is the product name reported to peers.
const Product = "Amora Bridge"

// Manufacturer identifies the project.
const Manufacturer = "Amora Project"
