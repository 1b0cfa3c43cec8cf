package backup

import (
	"errors"
	"fmt"
	"path"
)

// ErrDomainNotFound is returned when an included domain does not exist.
var ErrDomainNotFound = errors.New("domain not found")

// SelectDomains picks the domains to back up.
//
// With no include list every domain in all is a candidate; otherwise the
// include names are, in the order given. Included names missing from all
// fail with ErrDomainNotFound when failOnAbsent is set and are skipped
// otherwise. Candidates matching any exclude glob are dropped.
//
// Example: all {vm1 vm2 stand-01 stand-02}, exclude {vm2 stand-*} → {vm1}
func SelectDomains(all, include, exclude []string, failOnAbsent bool) ([]string, error) {
	for _, pattern := range exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	candidates := all
	if len(include) > 0 {
		known := make(map[string]bool, len(all))
		for _, name := range all {
			known[name] = true
		}

		candidates = make([]string, 0, len(include))
		for _, name := range include {
			if !known[name] {
				if failOnAbsent {
					return nil, fmt.Errorf("%w: %s", ErrDomainNotFound, name)
				}
				continue
			}
			candidates = append(candidates, name)
		}
	}

	selected := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		if seen[name] || excluded(name, exclude) {
			continue
		}
		seen[name] = true
		selected = append(selected, name)
	}
	return selected, nil
}

func excluded(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
