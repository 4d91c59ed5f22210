package cookiejar

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	claimsPrefix      = "cookiejar/claims/"
	redisClaimsPrefix = "cookiejar:claims:"
)

func memberHex(member common.Address) string {
	return strings.ToLower(member.Hex())
}

func claimsKey(member common.Address) []byte {
	return []byte(claimsPrefix + memberHex(member))
}

func redisClaimsKey(member common.Address) string {
	return redisClaimsPrefix + memberHex(member)
}
