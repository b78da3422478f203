package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnCommitRunsImmediatelyWithoutTransaction(t *testing.T) {
	ran := false
	OnCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}

func TestOnCommitDefersUntilMemoryRunnerFinishes(t *testing.T) {
	runner := NewMemoryRunner()
	var order []string

	err := runner.RunInTx(context.Background(), func(ctx context.Context) error {
		OnCommit(ctx, func() { order = append(order, "hook") })
		order = append(order, "body")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "hook"}, order)
}

func TestOnCommitDroppedWhenTransactionFails(t *testing.T) {
	runner := NewMemoryRunner()
	ran := false

	err := runner.RunInTx(context.Background(), func(ctx context.Context) error {
		OnCommit(ctx, func() { ran = true })
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.False(t, ran)
}
