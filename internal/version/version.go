package version

// Version is the current version of the Cinemate CLI.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/Sqott47/cinemate/internal/version.Version=v1.0.0'"
var Version = "dev"
