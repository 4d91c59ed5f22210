package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cookiejar/core/types"
)

const (
	TypeClaimRecorded = "cookiejar.claim.recorded"
	TypeDeposited     = "cookiejar.deposited"
	TypeMemberGranted = "cookiejar.member.granted"
	TypeMemberRevoked = "cookiejar.member.revoked"
)

// ClaimRecorded is emitted once a claim has been paid out and appended to the
// member's ledger.
type ClaimRecorded struct {
	Member    common.Address
	Timestamp int64
	Amount    uint64
	Units     *big.Int
	Reason    string
}

func (ClaimRecorded) EventType() string { return TypeClaimRecorded }

func (e ClaimRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeClaimRecorded,
		Attributes: map[string]string{
			"member":    formatAddress(e.Member),
			"timestamp": intToString(e.Timestamp),
			"amount":    uintToString(e.Amount),
			"units":     formatAmount(e.Units),
			"reason":    e.Reason,
		},
	}
}

// Deposited records pool funding.
type Deposited struct {
	From   common.Address
	Pool   common.Address
	Amount *big.Int
}

func (Deposited) EventType() string { return TypeDeposited }

func (e Deposited) Event() *types.Event {
	return &types.Event{
		Type: TypeDeposited,
		Attributes: map[string]string{
			"from":   formatAddress(e.From),
			"pool":   formatAddress(e.Pool),
			"amount": formatAmount(e.Amount),
		},
	}
}

// MemberGranted records an admin adding a member.
type MemberGranted struct {
	Member common.Address
	Caller common.Address
}

func (MemberGranted) EventType() string { return TypeMemberGranted }

func (e MemberGranted) Event() *types.Event {
	return &types.Event{
		Type: TypeMemberGranted,
		Attributes: map[string]string{
			"member": formatAddress(e.Member),
			"caller": formatAddress(e.Caller),
		},
	}
}

// MemberRevoked records an admin removing a member.
type MemberRevoked struct {
	Member common.Address
	Caller common.Address
}

func (MemberRevoked) EventType() string { return TypeMemberRevoked }

func (e MemberRevoked) Event() *types.Event {
	return &types.Event{
		Type: TypeMemberRevoked,
		Attributes: map[string]string{
			"member": formatAddress(e.Member),
			"caller": formatAddress(e.Caller),
		},
	}
}
