package config

const (
	// FormatJSON writes results to stdout as indented JSON
	FormatJSON = "json"
	// FormatTable renders results as terminal tables
	FormatTable = "table"

	// AppName is the config file base name and the env var prefix
	AppName = "catrole"

	// DefaultRoleFile holds a legacy one-line default assume-role name
	DefaultRoleFile = "~/.catrole"

	// MissingRoleMessage is reported when no role to assume is configured
	MissingRoleMessage = "-R/--assume-role is required (or set a default role in ~/.catrole)"
)
