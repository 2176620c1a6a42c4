package version

// Name is the binary name reported to external services.
const Name = "walletsearch"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent is sent to the xAI API when no override is configured.
func UserAgent() string {
	return Name + "/" + Version
}
