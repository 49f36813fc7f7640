package util

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"strings"

	"github.com/relex/gotils/logger"
)

// MD5ToHexdigest computes MD5 for given string and returns hex
func MD5ToHexdigest(content string) string {
	hasher := md5.New() //nolint:gosec
	if _, err := hasher.Write([]byte(content)); err != nil {
		logger.Panic(err)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// IdentityHash computes a stable filename-safe hash of an application identity, e.g. path of the executable
//
// The result is upper-case hex MD5, which keeps the same buffer file across runs of the same application
func IdentityHash(identity string) string {
	return strings.ToUpper(MD5ToHexdigest(identity))
}
