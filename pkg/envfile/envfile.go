package envfile

import (
	"crypto/md5" //nolint:gosec // change detection, not a security boundary
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"
)

// Load reads an env file and returns its variables as KEY=VALUE pairs,
// sorted by key. A missing or malformed file is a configuration error for
// the service owning it, never for its neighbors.
func Load(path string) ([]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %q: %w", path, err)
	}

	pairs := make([]string, 0, len(vars))
	for key, value := range vars {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(pairs)

	return pairs, nil
}

// Checksum hashes the env file content. The hash feeds the service config
// fingerprint so a changed env file recreates only the service reading it.
func Checksum(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read env file %q: %w", path, err)
	}

	return fmt.Sprintf("%x", md5.Sum(content)), nil //nolint:gosec
}
