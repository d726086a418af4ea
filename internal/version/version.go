package version

// Version is the current version of the PeerCall CLI.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/peercall/peercall/internal/version.Version=v1.0.0'"
var Version = "dev"
