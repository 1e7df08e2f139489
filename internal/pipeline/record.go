package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// supportedExtensions maps processable file extensions (lowercase, with dot)
// to their content types. Everything else is excluded from batch planning.
var supportedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".pdf":  "application/pdf",
}

// recordIDHashLen is the length of the hex hash suffix appended to record IDs.
const recordIDHashLen = 8

// DeriveRecordID derives a deterministic record ID from a file key. Path and
// extension separators are substituted with '-'; a short hash of the raw key
// is appended so distinct keys can never collide (substitution alone maps
// "a/b.png" and "a-b.png" to the same string).
func DeriveRecordID(fileKey string) string {
	base := strings.Map(func(r rune) rune {
		if r == '/' || r == '.' {
			return '-'
		}
		return r
	}, fileKey)
	sum := sha256.Sum256([]byte(fileKey))
	return base + "-" + hex.EncodeToString(sum[:])[:recordIDHashLen]
}

// ContentTypeFor returns the content type for a processable key, or false if
// the extension is not on the allow-list. Matching is case-insensitive.
func ContentTypeFor(key string) (string, bool) {
	ext := strings.ToLower(path.Ext(key))
	ct, ok := supportedExtensions[ext]
	return ct, ok
}

// FileFormat returns the lowercase extension of a key without the leading dot.
func FileFormat(key string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(key)), ".")
}

// IsBookkeepingKey reports whether a key is a status record, work manifest,
// or prompt configuration object rather than a data file or outcome artifact.
func IsBookkeepingKey(key string) bool {
	return strings.HasSuffix(key, StatusKeySuffix) ||
		strings.HasSuffix(key, ManifestKeySuffix) ||
		path.Base(key) == ConfigFileName
}
