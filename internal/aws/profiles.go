package aws

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// =============================================================================
// Profile Completion
// =============================================================================

// ListProfiles returns the profile names declared in the shared AWS
// credentials and config files, "default" first.
func ListProfiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return []string{"default"}
	}
	return listProfiles(
		filepath.Join(home, ".aws", "credentials"),
		filepath.Join(home, ".aws", "config"),
	)
}

func listProfiles(credentialsPath, configPath string) []string {
	seen := map[string]bool{"default": true}
	collect := func(path string, isConfig bool) {
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return
		}
		defer func() { _ = f.Close() }()
		for _, name := range profileSections(f, isConfig) {
			seen[name] = true
		}
	}
	collect(credentialsPath, false)
	collect(configPath, true)

	profiles := make([]string, 0, len(seen))
	for name := range seen {
		if name != "default" {
			profiles = append(profiles, name)
		}
	}
	sort.Strings(profiles)
	return append([]string{"default"}, profiles...)
}

// profileSections extracts profile names from an INI-style AWS file. In the
// config file every profile but "default" is written "[profile name]" and
// other sections such as sso-session are skipped.
func profileSections(r io.Reader, isConfig bool) []string {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
			continue
		}
		section := strings.TrimSpace(line[1 : len(line)-1])

		switch {
		case !isConfig:
			names = append(names, section)
		case section == "default":
			names = append(names, section)
		case strings.HasPrefix(section, "profile "):
			names = append(names, strings.TrimSpace(strings.TrimPrefix(section, "profile ")))
		}
	}
	return names
}

// =============================================================================
// Region Completion
// =============================================================================

// Region is an AWS region code with its display name.
type Region struct {
	Code string
	Name string
}

// CommonRegions lists the regions offered for completion.
var CommonRegions = []Region{
	{"us-east-1", "US East (N. Virginia)"},
	{"us-east-2", "US East (Ohio)"},
	{"us-west-1", "US West (N. California)"},
	{"us-west-2", "US West (Oregon)"},
	{"eu-west-1", "Europe (Ireland)"},
	{"eu-west-2", "Europe (London)"},
	{"eu-west-3", "Europe (Paris)"},
	{"eu-central-1", "Europe (Frankfurt)"},
	{"eu-north-1", "Europe (Stockholm)"},
	{"ap-northeast-1", "Asia Pacific (Tokyo)"},
	{"ap-northeast-2", "Asia Pacific (Seoul)"},
	{"ap-southeast-1", "Asia Pacific (Singapore)"},
	{"ap-southeast-2", "Asia Pacific (Sydney)"},
	{"ap-south-1", "Asia Pacific (Mumbai)"},
	{"sa-east-1", "South America (Sao Paulo)"},
	{"ca-central-1", "Canada (Central)"},
}

// RegionCompletions returns shell completion entries in the
// "code<TAB>description" form understood by cobra.
func RegionCompletions(prefix string) []string {
	var out []string
	for _, r := range CommonRegions {
		if strings.HasPrefix(r.Code, prefix) {
			out = append(out, r.Code+"\t"+r.Name)
		}
	}
	return out
}

// ProfileCompletions returns the profile names starting with prefix.
func ProfileCompletions(prefix string) []string {
	var out []string
	for _, p := range ListProfiles() {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}
