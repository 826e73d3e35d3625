package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Artifact represents physical content identified by its SHA-256 digest.
// There is exactly one Artifact per unique digest, no matter how many
// documents reference it.
type Artifact struct {
	Hash        string
	Size        int64
	MimeType    string
	StoragePath string
	CreatedAt   time.Time
}

var hexDigestRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsValidDigest reports whether s is a lowercase hex SHA-256 digest.
func IsValidDigest(s string) bool {
	return hexDigestRe.MatchString(s)
}

// ValidateArtifact validates an Artifact instance
func ValidateArtifact(a *Artifact) error {
	if a == nil {
		return fmt.Errorf("artifact cannot be nil")
	}

	if !IsValidDigest(a.Hash) {
		return fmt.Errorf("artifact Hash must be a lowercase hex sha256 digest")
	}

	if a.Size < 0 {
		return fmt.Errorf("artifact Size cannot be negative")
	}

	if a.StoragePath == "" {
		return fmt.Errorf("artifact StoragePath is required")
	}

	return nil
}
