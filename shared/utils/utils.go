package utils

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// ContentSum returns a short stable hex digest of content, used for cheap
// equality checks and journal records. Not a cryptographic hash.
func ContentSum(content []byte) string {
	return fmt.Sprintf("%x", xxh3.Hash128(content).Bytes())
}
