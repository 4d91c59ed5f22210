package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestClaimRecordedAttributes(t *testing.T) {
	member := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	evt := ClaimRecorded{
		Member:    member,
		Timestamp: 1001,
		Amount:    3,
		Units:     big.NewInt(6),
		Reason:    "team lunch",
	}.Event()

	require.Equal(t, TypeClaimRecorded, evt.Type)
	require.Equal(t, "0x00000000000000000000000000000000000000aa", evt.Attributes["member"])
	require.Equal(t, "1001", evt.Attributes["timestamp"])
	require.Equal(t, "3", evt.Attributes["amount"])
	require.Equal(t, "6", evt.Attributes["units"])
	require.Equal(t, "team lunch", evt.Attributes["reason"])
	require.Equal(t, []string{"amount", "member", "reason", "timestamp", "units"}, evt.Keys())
}

func TestDepositedNilAmount(t *testing.T) {
	evt := Deposited{}.Event()
	require.Equal(t, "0", evt.Attributes["amount"])
}

type countingEmitter struct{ n int }

func (c *countingEmitter) Emit(Event) { c.n++ }

func TestMultiEmitterFansOut(t *testing.T) {
	first := &countingEmitter{}
	second := &countingEmitter{}
	rec := &Recorder{}
	multi := MultiEmitter{first, nil, second, rec}

	multi.Emit(MemberGranted{})
	multi.Emit(MemberRevoked{})

	require.Equal(t, 2, first.n)
	require.Equal(t, 2, second.n)
	got := rec.Events()
	require.Len(t, got, 2)
	require.Equal(t, TypeMemberGranted, got[0].EventType())
	require.Equal(t, TypeMemberRevoked, got[1].EventType())
	NoopEmitter{}.Emit(MemberGranted{})
}
