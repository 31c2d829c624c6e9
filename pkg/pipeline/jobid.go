package pipeline

import (
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// DecodeEventKey reverses the URL encoding upload event notifications
// apply to object keys ("my+file.csv", "report%3A2024.csv").
// Malformed escapes fall back to the raw key.
func DecodeEventKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}

// DeriveJobID derives the job identifier from an object key: the base
// name with its extension stripped. "uploads/2024/orders.csv" becomes
// "orders". The derivation is deterministic, so re-uploading the same
// filename addresses the same job record (overwrite semantics).
//
// A key with no usable base name gets a random id rather than an empty
// primary key.
func DeriveJobID(key string) string {
	base := path.Base(strings.TrimSuffix(key, "/"))
	id := strings.TrimSuffix(base, path.Ext(base))
	if id == "" || id == "." || id == "/" {
		return uuid.NewString()
	}
	return id
}
