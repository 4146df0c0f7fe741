package util

import (
	"crypto/rand"
	"encoding/hex"
	"path"
	"strings"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewObjectKey builds a blob-storage object key for an uploaded image,
// preserving the file extension of the local source so content types
// stay guessable from the key alone.
func NewObjectKey(responseID, itemID, localName string) string {
	ext := strings.ToLower(path.Ext(localName))
	key := responseID + "/" + itemID + "/" + NewID("img")
	if ext != "" {
		key += ext
	}
	return key
}
