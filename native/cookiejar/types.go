package cookiejar

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ModuleName is the key used for pause switches and logs.
const ModuleName = "cookiejar"

const (
	RoleMember   = "ROLE_COOKIE_MEMBER"
	RoleAdmin    = "ROLE_COOKIE_ADMIN"
	RoleUpgrader = "ROLE_COOKIE_UPGRADER"
)

// Claim is a single recorded withdrawal. Timestamp is in unix seconds and
// Amount in cookies.
type Claim struct {
	Timestamp uint64
	Amount    uint64
}

// Receipt describes a successful claim.
type Receipt struct {
	Member    common.Address
	Timestamp uint64
	Amount    uint64
	Units     *big.Int
	Reason    string
	Remaining uint64
}
