package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStatus struct {
	status types.OrderStatus
	err    error
}

type statusBroker struct {
	interfaces.Broker
	script []scriptedStatus
	calls  int
}

func (b *statusBroker) OrderStatus(context.Context, string) (types.OrderStatus, error) {
	s := b.script[min(b.calls, len(b.script)-1)]
	b.calls++
	return s.status, s.err
}

func TestFillPoller_WaitsForFill(t *testing.T) {
	brk := &statusBroker{script: []scriptedStatus{
		{status: types.OrderStatus{Status: "OPEN PENDING"}},
		{err: errors.New("gateway timeout")},
		{status: types.OrderStatus{Status: types.OrderComplete, ExecutedPrice: d("121.35")}},
	}}

	st, err := NewFillPoller(5, time.Millisecond).ExecutedPrice(context.Background(), brk, "ORD-1")

	require.NoError(t, err)
	assert.True(t, st.Filled())
	assert.True(t, d("121.35").Equal(st.ExecutedPrice))
	assert.Equal(t, 3, brk.calls)
}

func TestFillPoller_DeadOrderReturnsImmediately(t *testing.T) {
	brk := &statusBroker{script: []scriptedStatus{
		{status: types.OrderStatus{Status: types.OrderRejected, Message: "RMS: margin exceeds"}},
	}}

	st, err := NewFillPoller(5, time.Millisecond).ExecutedPrice(context.Background(), brk, "ORD-1")

	require.NoError(t, err)
	assert.True(t, st.Dead())
	assert.Equal(t, 1, brk.calls)
}

func TestFillPoller_GivesUpAfterAttempts(t *testing.T) {
	brk := &statusBroker{script: []scriptedStatus{
		{status: types.OrderStatus{Status: types.OrderOpen}},
	}}

	st, err := NewFillPoller(3, time.Millisecond).ExecutedPrice(context.Background(), brk, "ORD-1")

	require.ErrorIs(t, err, errFillUnconfirmed)
	assert.Equal(t, types.OrderOpen, st.Status)
	assert.Equal(t, 3, brk.calls)
}

func TestFillPoller_CompleteWithoutPriceIsUnconfirmed(t *testing.T) {
	brk := &statusBroker{script: []scriptedStatus{
		{status: types.OrderStatus{Status: types.OrderComplete, ExecutedPrice: decimal.Zero}},
	}}

	_, err := NewFillPoller(2, 0).ExecutedPrice(context.Background(), brk, "ORD-1")

	assert.ErrorIs(t, err, errFillUnconfirmed)
}

func TestFillPoller_AuthFailureStopsPolling(t *testing.T) {
	brk := &statusBroker{script: []scriptedStatus{
		{err: &types.AuthError{Stage: "orders", Reason: "token expired"}},
	}}

	_, err := NewFillPoller(5, time.Millisecond).ExecutedPrice(context.Background(), brk, "ORD-1")

	assert.True(t, types.IsAuthFailure(err))
	assert.Equal(t, 1, brk.calls)
}

func TestFillPoller_HonoursCancellation(t *testing.T) {
	brk := &statusBroker{script: []scriptedStatus{
		{status: types.OrderStatus{Status: types.OrderOpen}},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFillPoller(5, time.Hour).ExecutedPrice(ctx, brk, "ORD-1")

	assert.ErrorIs(t, err, errFillUnconfirmed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, brk.calls)
}
