package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinwork/backend/internal/models"
)

var errWriteFailed = errors.New("write failed")

func TestCreateTask_RollsBackWhenInsertFails(t *testing.T) {
	env := newTestEnv()
	buyer := env.users.add(models.RoleBuyer, 50)
	env.tasks.createErr = errWriteFailed

	_, err := env.taskSvc.CreateTask(context.Background(), buyer, taskInput(2, 5))
	require.ErrorIs(t, err, errWriteFailed)

	tx := env.pool.last()
	require.NotNil(t, tx)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
	assert.Len(t, env.entries.entries, 1, "debit was written inside the aborted transaction")
}

func TestCreateTask_InsufficientFundsSkipsInsert(t *testing.T) {
	env := newTestEnv()
	buyer := env.users.add(models.RoleBuyer, 9)

	_, err := env.taskSvc.CreateTask(context.Background(), buyer, taskInput(2, 5))
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	assert.Zero(t, env.tasks.createCalls)
	tx := env.pool.last()
	require.NotNil(t, tx)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestRequestWithdrawal_RollsBackWhenInsertFails(t *testing.T) {
	env := newTestEnv()
	worker := env.users.add(models.RoleWorker, 40)
	env.withdrawals.createErr = errWriteFailed

	_, err := env.withdrawalSvc.RequestWithdrawal(context.Background(), worker, withdrawal(40))
	require.ErrorIs(t, err, errWriteFailed)

	tx := env.pool.last()
	require.NotNil(t, tx)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
	assert.Empty(t, env.withdrawals.list)
}

func TestApprove_RollsBackWhenStatusUpdateFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	buyer := env.users.add(models.RoleBuyer, 50)
	worker := env.users.add(models.RoleWorker, 0)
	task, err := env.taskSvc.CreateTask(ctx, buyer, taskInput(1, 5))
	require.NoError(t, err)
	sub, err := env.submissionSvc.Submit(ctx, task.ID, worker, "proof")
	require.NoError(t, err)
	env.submissions.setStatusErr = errWriteFailed

	_, err = env.submissionSvc.Approve(ctx, sub.ID, buyer)
	require.ErrorIs(t, err, errWriteFailed)

	tx := env.pool.last()
	require.NotNil(t, tx)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
	assert.Empty(t, env.events.all(), "no notification is queued for an aborted decision")
}

func TestCommittedTransactionIsNotRolledBack(t *testing.T) {
	env := newTestEnv()
	buyer := env.users.add(models.RoleBuyer, 50)

	_, err := env.taskSvc.CreateTask(context.Background(), buyer, taskInput(2, 5))
	require.NoError(t, err)

	tx := env.pool.last()
	require.NotNil(t, tx)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}
