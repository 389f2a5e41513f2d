package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	sha256HexLen = 64
	md5HexLen    = 32
)

// Checksum holds the expected digests of a filter binary as lower-case hex.
type Checksum struct {
	SHA256 string `json:"sha"`
	MD5    string `json:"md5"`
}

// Matches reports whether both digests are equal, ignoring hex case.
// An empty checksum never matches.
func (c Checksum) Matches(other Checksum) bool {
	if c.SHA256 == "" || c.MD5 == "" {
		return false
	}
	return strings.EqualFold(c.SHA256, other.SHA256) && strings.EqualFold(c.MD5, other.MD5)
}

// DecodeManifest parses a checksum manifest document of the form
// {"sha": "<64 hex>", "md5": "<32 hex>"}. Digests are normalised to lower case.
// Every failure wraps ErrManifestDecode.
func DecodeManifest(data []byte) (Checksum, error) {
	var c Checksum
	if err := json.Unmarshal(data, &c); err != nil {
		return Checksum{}, fmt.Errorf("%w: %v", ErrManifestDecode, err)
	}
	c.SHA256 = strings.ToLower(strings.TrimSpace(c.SHA256))
	c.MD5 = strings.ToLower(strings.TrimSpace(c.MD5))
	if err := checkHex("sha", c.SHA256, sha256HexLen); err != nil {
		return Checksum{}, err
	}
	if err := checkHex("md5", c.MD5, md5HexLen); err != nil {
		return Checksum{}, err
	}
	return c, nil
}

// EncodeManifest renders c in the manifest format accepted by DecodeManifest.
func EncodeManifest(c Checksum) ([]byte, error) {
	return json.Marshal(c)
}

func checkHex(field, v string, n int) error {
	if v == "" {
		return fmt.Errorf("%w: missing %q", ErrManifestDecode, field)
	}
	if len(v) != n {
		return fmt.Errorf("%w: %q has %d hex chars, want %d", ErrManifestDecode, field, len(v), n)
	}
	if _, err := hex.DecodeString(v); err != nil {
		return fmt.Errorf("%w: %q is not hex: %v", ErrManifestDecode, field, err)
	}
	return nil
}
