package platform

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

var ErrInvalidID = errors.New("invalid id")

// IsObjectID reports whether s is a raw 24 character hex identifier.
func IsObjectID(s string) bool {
	return objectIDPattern.MatchString(s)
}

// EncodeID converts a hex identifier to its URL-safe base64 form.
// Values that are not hex identifiers are returned unchanged.
func EncodeID(id string) string {
	if !IsObjectID(id) {
		return id
	}
	b, _ := hex.DecodeString(id)
	return base64.URLEncoding.EncodeToString(b)
}

// EncodeIDPtr is EncodeID for optional references.
func EncodeIDPtr(id *string) *string {
	if id == nil {
		return nil
	}
	enc := EncodeID(*id)
	return &enc
}

// DecodeID reverses EncodeID.
func DecodeID(encoded string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidID, encoded)
	}
	if len(b) != 12 {
		return "", fmt.Errorf("%w: %s", ErrInvalidID, encoded)
	}
	return hex.EncodeToString(b), nil
}

// ResolveID accepts either an encoded identifier or a raw hex one.
func ResolveID(s string) (string, error) {
	if IsObjectID(s) {
		return s, nil
	}
	return DecodeID(s)
}
