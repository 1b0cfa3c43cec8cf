package cloudinit

import (
	"fmt"
	"os"
	"strings"
)

// DevKeysEnv holds developer public keys when no key file is given.
const DevKeysEnv = "HEARTH_DEV_KEYS"

// LoadDeveloperKeys returns the public keys to authorize on stand domains.
//
// A key file given by path wins over the environment. The result is empty
// when neither is set. Blank lines and comments are dropped.
func LoadDeveloperKeys(path string) ([]string, error) {
	var raw string

	switch {
	case path != "":
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("invalid path to the developer keys: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("invalid path to the developer keys: %s is not a file", path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read developer keys: %w", err)
		}
		raw = string(data)
	default:
		raw = os.Getenv(DevKeysEnv)
	}

	var keys []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}

	return keys, nil
}
