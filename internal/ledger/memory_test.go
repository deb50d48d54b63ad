package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khqrgw/internal/domain"
)

func testPayment(i int) domain.Payment {
	// Left-aligned so short hashes stay distinct across payments.
	md5 := fmt.Sprintf("%d%031d", i, 0)[:32]
	return domain.Payment{
		BillNumber: fmt.Sprintf("INV-%03d", i),
		Amount:     1.50,
		Currency:   "USD",
		QRString:   "00020101021229...",
		MD5:        md5,
		ShortHash:  md5[:8],
		Status:     domain.StatusPending,
		CreatedAt:  time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
	}
}

func TestMemorySaveAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	p := testPayment(1)
	require.NoError(t, m.Save(ctx, p))

	got, err := m.Get(ctx, p.MD5)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	got, err = m.GetByShortHash(ctx, p.ShortHash)
	require.NoError(t, err)
	assert.Equal(t, p.MD5, got.MD5)

	_, err = m.Get(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	p := testPayment(1)
	require.NoError(t, m.Save(ctx, p))
	assert.ErrorIs(t, m.Save(ctx, p), domain.ErrDuplicateBill)
}

func TestMemoryShortHashCollisionKeepsFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first := testPayment(1)
	second := testPayment(2)
	second.MD5 = first.ShortHash + "ffffffffffffffffffffffff"
	second.ShortHash = first.ShortHash

	require.NoError(t, m.Save(ctx, first))
	require.NoError(t, m.Save(ctx, second))

	got, err := m.GetByShortHash(ctx, first.ShortHash)
	require.NoError(t, err)
	assert.Equal(t, first.MD5, got.MD5)
}

func TestMemoryListNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Save(ctx, testPayment(i)))
	}

	got, err := m.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "INV-004", got[0].BillNumber)
	assert.Equal(t, "INV-002", got[2].BillNumber)

	all, err := m.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemoryStatusTransitions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := testPayment(1)
	require.NoError(t, m.Save(ctx, p))

	require.NoError(t, m.SetStatus(ctx, p.MD5, domain.StatusError))
	require.NoError(t, m.SetStatus(ctx, p.MD5, domain.StatusPending))

	settled := time.Now().UTC()
	require.NoError(t, m.MarkCompleted(ctx, p.MD5, domain.Settlement{
		TransactionHash: "abc123",
		FromAccount:     "payer@bank",
		SettledAt:       &settled,
	}))

	got, err := m.Get(ctx, p.MD5)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "abc123", got.TransactionHash)
	assert.Equal(t, "payer@bank", got.FromAccount)
	require.NotNil(t, got.CompletedAt)

	// Terminal records refuse further transitions.
	assert.ErrorIs(t, m.SetStatus(ctx, p.MD5, domain.StatusFailed), domain.ErrTerminalStatus)
	assert.ErrorIs(t, m.MarkCompleted(ctx, p.MD5, domain.Settlement{}), domain.ErrTerminalStatus)

	assert.ErrorIs(t, m.SetStatus(ctx, "unknown", domain.StatusFailed), domain.ErrNotFound)
}

func TestMemoryPending(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 4; i++ {
		require.NoError(t, m.Save(ctx, testPayment(i)))
	}
	require.NoError(t, m.SetStatus(ctx, testPayment(0).MD5, domain.StatusFailed))
	require.NoError(t, m.SetStatus(ctx, testPayment(1).MD5, domain.StatusError))
	require.NoError(t, m.MarkCompleted(ctx, testPayment(2).MD5, domain.Settlement{}))

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, domain.StatusError, pending[0].Status)
	assert.Equal(t, domain.StatusPending, pending[1].Status)
}

func TestMemorySetDeeplink(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := testPayment(1)
	require.NoError(t, m.Save(ctx, p))

	require.NoError(t, m.SetDeeplink(ctx, p.MD5, "https://pay.example/abc"))
	got, err := m.Get(ctx, p.MD5)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", got.DeeplinkURL)

	assert.ErrorIs(t, m.SetDeeplink(ctx, "unknown", "x"), domain.ErrNotFound)

	// A settled record keeps its deeplink, same as the redis backend.
	require.NoError(t, m.MarkCompleted(ctx, p.MD5, domain.Settlement{}))
	assert.ErrorIs(t, m.SetDeeplink(ctx, p.MD5, "https://pay.example/late"), domain.ErrTerminalStatus)
	got, err = m.Get(ctx, p.MD5)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", got.DeeplinkURL)
}

func TestMemoryPurge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Save(ctx, testPayment(1)))
	require.NoError(t, m.Purge(ctx))

	all, err := m.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = m.Get(ctx, testPayment(1).MD5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
