package compose

import (
	"crypto/md5" //nolint:gosec // fingerprint, not a security boundary
	"fmt"

	"gopkg.in/yaml.v2"
)

// ConfigHash fingerprints the deployment-relevant fields of a service
// together with the checksum of its env file. Two identical hashes mean a
// running container already matches the manifest and stack-up must leave it
// untouched.
func (s Service) ConfigHash(envChecksum string) string {
	data, err := yaml.Marshal(s)
	if err != nil {
		// The model is plain data, marshaling it cannot fail at runtime.
		panic(err)
	}

	return fmt.Sprintf("%x", md5.Sum(append(data, []byte(envChecksum)...))) //nolint:gosec
}
