package mining

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	txs   []*types.Transaction
	calls int
}

func (p *fakePool) Ready(max int) []*types.Transaction {
	p.calls++
	n := len(p.txs)
	if max > 0 && max < n {
		n = max
	}
	out := p.txs[:n:n]
	p.txs = p.txs[n:]
	return out
}

func makeTxs(n int) []*types.Transaction {
	txs := make([]*types.Transaction, n)
	for i := range txs {
		txs[i] = types.NewTx(&types.LegacyTx{Nonce: uint64(i)})
	}
	return txs
}

func TestDisabled_AlwaysPending(t *testing.T) {
	m := New(NewDisabled(), zerolog.Nop())
	pool := &fakePool{txs: makeTxs(3)}

	for i := 0; i < 3; i++ {
		txs, ready := m.Poll(pool)
		assert.False(t, ready)
		assert.Empty(t, txs)
	}
	assert.Zero(t, pool.calls, "disabled mode must not touch the pool")
}

func TestAuto_CapScenario(t *testing.T) {
	// cap=1, pool holds [tx1, tx2]:
	// poll #1 -> [tx1], flag stays set because exactly cap were pulled
	// poll #2 -> [tx2] without any new notification
	// poll #3 -> pending, flag cleared
	notif := make(chan common.Hash, 8)
	m := New(NewAuto(1, notif), zerolog.Nop())
	all := makeTxs(2)
	pool := &fakePool{txs: all}

	txs, ready := m.Poll(pool)
	require.True(t, ready)
	require.Len(t, txs, 1)
	assert.Equal(t, all[0].Hash(), txs[0].Hash())

	txs, ready = m.Poll(pool)
	require.True(t, ready)
	require.Len(t, txs, 1)
	assert.Equal(t, all[1].Hash(), txs[0].Hash())

	txs, ready = m.Poll(pool)
	assert.False(t, ready)
	assert.Empty(t, txs)
}

func TestAuto_EmptyPoolShortCircuit(t *testing.T) {
	notif := make(chan common.Hash, 8)
	m := New(NewAuto(10, notif), zerolog.Nop())
	pool := &fakePool{}

	// First poll scans the pool (flag starts unknown) and clears the flag.
	_, ready := m.Poll(pool)
	assert.False(t, ready)
	assert.Equal(t, 1, pool.calls)

	// With the flag cleared and no notification, the pool is left alone.
	_, ready = m.Poll(pool)
	assert.False(t, ready)
	assert.Equal(t, 1, pool.calls)

	// A notification re-arms the scan.
	pool.txs = makeTxs(2)
	notif <- pool.txs[0].Hash()
	txs, ready := m.Poll(pool)
	require.True(t, ready)
	assert.Len(t, txs, 2)
	assert.Equal(t, 2, pool.calls)
}

func TestAuto_DrainsAllNotifications(t *testing.T) {
	notif := make(chan common.Hash, 8)
	m := New(NewAuto(5, notif), zerolog.Nop())
	pool := &fakePool{txs: makeTxs(3)}

	for i := 0; i < 5; i++ {
		notif <- common.Hash{byte(i)}
	}
	txs, ready := m.Poll(pool)
	require.True(t, ready)
	assert.Len(t, txs, 3)
	assert.Empty(t, notif, "poll must drain the notification channel fully")
}

func TestAuto_ZeroLimitNeverReady(t *testing.T) {
	notif := make(chan common.Hash, 1)
	m := New(NewAuto(0, notif), zerolog.Nop())
	pool := &fakePool{txs: makeTxs(4)}

	notif <- common.Hash{1}
	txs, ready := m.Poll(pool)
	assert.False(t, ready)
	assert.Empty(t, txs)
	assert.Zero(t, pool.calls, "zero cap must not pull from the pool")
}

func TestInterval_FiresOncePerPeriod(t *testing.T) {
	m := New(NewInterval(50*time.Millisecond), zerolog.Nop())
	pool := &fakePool{txs: makeTxs(3)}

	// Before the first tick, poll is pending.
	txs, ready := m.Poll(pool)
	assert.False(t, ready)
	assert.Empty(t, txs)

	select {
	case <-m.WakeC():
	case <-time.After(time.Second):
		t.Fatal("interval tick never woke the miner")
	}

	// All ready transactions are pulled, no cap.
	txs, ready = m.Poll(pool)
	require.True(t, ready)
	assert.Len(t, txs, 3)

	// The tick is consumed: the next poll is pending again.
	_, ready = m.Poll(pool)
	assert.False(t, ready)
}

func TestInterval_EmptyBlockIsReady(t *testing.T) {
	m := New(NewInterval(20*time.Millisecond), zerolog.Nop())
	pool := &fakePool{}

	select {
	case <-m.WakeC():
	case <-time.After(time.Second):
		t.Fatal("interval tick never woke the miner")
	}

	txs, ready := m.Poll(pool)
	assert.True(t, ready, "an empty tick is still a block")
	assert.Empty(t, txs)
}

func TestInterval_NonPositivePeriodClamped(t *testing.T) {
	for _, period := range []time.Duration{0, -time.Second} {
		i := NewInterval(period)
		assert.Equal(t, time.Second, i.Period())
		i.stop()
	}
}

func TestSetMode_WakesUnconditionally(t *testing.T) {
	m := New(NewDisabled(), zerolog.Nop())

	// Drain any stale signal first.
	select {
	case <-m.WakeC():
	default:
	}

	m.SetMode(NewAuto(10, make(chan common.Hash, 1)))

	select {
	case <-m.WakeC():
	case <-time.After(time.Second):
		t.Fatal("mode change did not wake the miner")
	}
}

func TestModePredicates(t *testing.T) {
	m := New(NewDisabled(), zerolog.Nop())
	assert.False(t, m.IsAutoMine())
	assert.False(t, m.IsInterval())

	m.SetMode(NewAuto(10, make(chan common.Hash, 1)))
	assert.True(t, m.IsAutoMine())
	assert.False(t, m.IsInterval())

	m.SetMode(NewInterval(time.Second))
	assert.False(t, m.IsAutoMine())
	assert.True(t, m.IsInterval())
}

func TestWaker_Coalesces(t *testing.T) {
	w := NewWaker()
	w.Wake()
	w.Wake()
	w.Wake()

	<-w.C()
	select {
	case <-w.C():
		t.Fatal("repeated wakes must coalesce into one signal")
	default:
	}
}
