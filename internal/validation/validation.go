// Package validation provides input validation for wallet identifiers
// and request bodies.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB).
const MaxRequestSize = 1 << 20

// Chains with a strict, checkable address format. Other chains accept
// any reasonable-looking identifier.
var (
	// btcAddressRegex covers base58 and bech32 mainnet addresses.
	btcAddressRegex = regexp.MustCompile(`^(1|3)[a-km-zA-HJ-NP-Z1-9]{25,34}$|^bc1[a-z0-9]{11,71}$`)
	// genericAddressRegex is the fallback for chains without a strict format.
	genericAddressRegex = regexp.MustCompile(`^[a-zA-Z0-9:_\-.]{4,128}$`)
)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAddress checks an address against its chain's format. Chains
// with strict formats (ethereum, bitcoin) are checked exactly; anything
// else gets the generic shape check.
func IsValidAddress(chain, address string) bool {
	address = strings.TrimSpace(address)
	switch strings.ToLower(strings.TrimSpace(chain)) {
	case "eth", "ethereum", "polygon", "bsc", "base", "arbitrum", "optimism":
		return common.IsHexAddress(address)
	case "btc", "bitcoin":
		return btcAddressRegex.MatchString(address)
	default:
		return genericAddressRegex.MatchString(address)
	}
}

// SanitizeString trims whitespace, caps length, and strips null bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}
