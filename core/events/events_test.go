package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestRecorderCollectsInOrder(t *testing.T) {
	rec := &Recorder{}
	rec.Emit(ProductRegistered{Alias: common.HexToHash("0x01")})
	rec.Emit(FarmingClaimed{Account: common.HexToAddress("0x02"), Amount: big.NewInt(5)})
	rec.Emit(nil)

	got := rec.Events()
	require.Len(t, got, 2)
	require.Equal(t, TypeProductRegistered, got[0].EventType())
	require.Equal(t, TypeFarmingClaimed, got[1].EventType())

	rec.Reset()
	require.Empty(t, rec.Events())
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.Emit(ProductRegistered{})
	require.Nil(t, rec.Events())
}

func TestNoopEmitter(t *testing.T) {
	var e Emitter = NoopEmitter{}
	e.Emit(PaymentSettled{Price: big.NewInt(1)})
}
