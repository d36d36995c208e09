package skill

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

// ManifestFile is the file that marks a directory as a skill
const ManifestFile = "SKILL.md"

// ManifestPath returns the manifest location inside dir
func ManifestPath(dir string) string {
	return filepath.Join(dir, ManifestFile)
}

// ManifestDigest returns the sha256 digest of dir's manifest bytes.
// Its string form is the "sha256:<hex>" checksum recorded in the lock file.
func ManifestDigest(dir string) (digest.Digest, error) {
	f, err := os.Open(ManifestPath(dir))
	if err != nil {
		return "", err
	}
	defer f.Close()

	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", ManifestFile, err)
	}
	return d, nil
}
