package version

// Set via -ldflags "-X github.com/nitronimbus/nitronimbus/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = ""
)

// GetVersion returns the version, suffixed with the short commit when known
func GetVersion() string {
	if Commit == "" {
		return Version
	}

	short := Commit
	if len(short) > 7 {
		short = short[:7]
	}

	return Version + "+" + short
}
