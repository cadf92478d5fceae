// Package version reads the server's VERSION file once at startup and
// implements the ping compatibility rule of spec.md §6.
package version

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Version is a parsed major.minor.patch triple.
type Version struct {
	Major, Minor, Patch int
}

// Parse parses a "major.minor.patch" string.
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("version: expected major.minor.patch, got %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("version: invalid component %q: %w", p, err)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String renders the version back to major.minor.patch form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ReadFile reads and parses the VERSION file at path, per spec.md §6.
func ReadFile(path string) (Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Version{}, err
	}
	return Parse(string(data))
}

// Compatibility is the outcome of CheckPing.
type Compatibility int

const (
	// Compatible means major and minor match and client patch <= server patch.
	Compatible Compatibility = iota
	// NonMasterBranch means major/minor match but the client patch exceeds
	// the server's, per spec.md §6's "non-master branch" message.
	NonMasterBranch
	// Incompatible means major or minor differ.
	Incompatible
)

// CheckPing implements spec.md §6's ping compatibility rule: major and
// minor must equal the server's; client patch may be less than or equal.
func CheckPing(server, client Version) Compatibility {
	if server.Major != client.Major || server.Minor != client.Minor {
		return Incompatible
	}
	if client.Patch > server.Patch {
		return NonMasterBranch
	}
	return Compatible
}
