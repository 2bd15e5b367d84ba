package txpool

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(nonce uint64) *types.Transaction {
	return types.NewTx(&types.LegacyTx{Nonce: nonce})
}

func TestPool_ReadyFIFO(t *testing.T) {
	p := New(zerolog.Nop())
	for i := uint64(0); i < 5; i++ {
		p.Add(tx(i))
	}
	require.Equal(t, 5, p.Len())

	first := p.Ready(2)
	require.Len(t, first, 2)
	assert.Equal(t, uint64(0), first[0].Nonce())
	assert.Equal(t, uint64(1), first[1].Nonce())

	rest := p.Ready(0)
	require.Len(t, rest, 3)
	assert.Equal(t, uint64(2), rest[0].Nonce())
	assert.Zero(t, p.Len())
	assert.Nil(t, p.Ready(10))
}

func TestPool_SubscribeReady(t *testing.T) {
	p := New(zerolog.Nop())

	woken := 0
	ch := p.SubscribeReady(func() { woken++ })

	a, b := tx(0), tx(1)
	p.Add(a)
	p.Add(b)

	assert.Equal(t, 2, woken)
	require.Len(t, ch, 2)
	assert.Equal(t, a.Hash(), <-ch)
	assert.Equal(t, b.Hash(), <-ch)
}

func TestPool_SubscribeNilNotify(t *testing.T) {
	p := New(zerolog.Nop())
	ch := p.SubscribeReady(nil)
	p.Add(tx(0))
	require.Len(t, ch, 1)
}
