package resource

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// CalculateHash computes the SHA-1 digest of the content and the shard
// path derived from it, used for content-addressed storage layouts
// (format: /xx/yy/<full hash>).
func CalculateHash(content []byte) (string, string) {
	sum := sha1.Sum(content)
	digest := hex.EncodeToString(sum[:])
	shard := fmt.Sprintf("/%s/%s/%s", digest[:2], digest[2:4], digest)
	return digest, shard
}
