package sqldb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

func openTestManager(t *testing.T, mutate func(*types.Config)) *Manager {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "db")
	cfg.MaxPoolSize = 4
	cfg.MinIdle = 1
	cfg.AcquireTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	_, err = m.Pool().Exec(context.Background(), "CREATE TABLE IF NOT EXISTS KV (K VARCHAR(64) NOT NULL PRIMARY KEY, V TEXT)")
	require.NoError(t, err)
	return m
}

func readKV(t *testing.T, q Querier, k string) (string, error) {
	t.Helper()
	var v string
	err := q.QueryRow(context.Background(), "SELECT V FROM KV WHERE K = ?", k).Scan(&v)
	return v, err
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := types.DefaultConfig()
	_, err := Open(context.Background(), cfg, nil)
	assert.True(t, errors.Is(err, errors.Configuration), "got %v", err)
}

func TestAcquire_AutoCommit(t *testing.T) {
	m := openTestManager(t, func(c *types.Config) { c.AutoCommit = true })
	ctx := context.Background()

	c, err := m.Acquire(ctx, nil)
	require.NoError(t, err)
	_, err = c.Exec(ctx, "INSERT INTO KV (K, V) VALUES (?, ?)", "a", "1")
	require.NoError(t, err)

	// Visible immediately to any other connection.
	v, err := readKV(t, m.Pool(), "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.Equal(t, int64(0), m.Reserved())

	// Commit and abort are no-ops.
	assert.NoError(t, m.Commit(nil))
	assert.NoError(t, m.Abort(nil))
}

func TestAcquire_RequiresHandle(t *testing.T) {
	m := openTestManager(t, nil)
	_, err := m.Acquire(context.Background(), nil)
	assert.True(t, errors.Is(err, errors.Configuration), "got %v", err)
}

func TestAcquire_ReservesOnce(t *testing.T) {
	m := openTestManager(t, nil)
	ctx := context.Background()
	tx := m.Begin()
	defer m.Release(tx)

	assert.Equal(t, int64(0), m.Reserved())
	c1, err := m.Acquire(ctx, tx)
	require.NoError(t, err)
	_, err = c1.Exec(ctx, "INSERT INTO KV (K, V) VALUES (?, ?)", "a", "1")
	require.NoError(t, err)

	c2, err := m.Acquire(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Reserved())

	// Same transaction: the uncommitted row is visible.
	v, err := readKV(t, c2, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestCommitAbort_States(t *testing.T) {
	m := openTestManager(t, nil)
	ctx := context.Background()
	tx := m.Begin()
	defer m.Release(tx)

	err := m.Commit(tx)
	assert.True(t, errors.Is(err, errors.TransactionState), "commit before acquire: %v", err)
	err = m.Abort(tx)
	assert.True(t, errors.Is(err, errors.TransactionState), "abort before acquire: %v", err)

	_, err = m.Acquire(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, m.Commit(tx))

	err = m.Commit(tx)
	assert.True(t, errors.Is(err, errors.TransactionState), "double commit: %v", err)

	// The connection stays reserved and a new transaction starts on it.
	assert.Equal(t, int64(1), m.Reserved())
	_, err = m.Acquire(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, m.Abort(tx))
	assert.Equal(t, int64(1), m.Reserved())
}

func TestRelease(t *testing.T) {
	m := openTestManager(t, nil)
	ctx := context.Background()

	assert.NoError(t, m.Release(nil))
	assert.NoError(t, m.Release(m.Begin()))

	tx := m.Begin()
	c, err := m.Acquire(ctx, tx)
	require.NoError(t, err)
	_, err = c.Exec(ctx, "INSERT INTO KV (K, V) VALUES (?, ?)", "a", "1")
	require.NoError(t, err)

	require.NoError(t, m.Release(tx))
	require.NoError(t, m.Release(tx))
	assert.Equal(t, int64(0), m.Reserved())

	// Released with an open transaction: rolled back.
	_, err = readKV(t, m.Pool(), "a")
	assert.Equal(t, sql.ErrNoRows, err)

	_, err = m.Acquire(ctx, tx)
	assert.True(t, errors.Is(err, errors.TransactionState), "acquire after release: %v", err)
}

func TestAcquire_PoolExhausted(t *testing.T) {
	m := openTestManager(t, func(c *types.Config) {
		c.MaxPoolSize = 1
		c.MinIdle = 1
		c.AcquireTimeout = 100 * time.Millisecond
	})
	ctx := context.Background()

	t1 := m.Begin()
	_, err := m.Acquire(ctx, t1)
	require.NoError(t, err)

	t2 := m.Begin()
	defer m.Release(t2)
	start := time.Now()
	_, err = m.Acquire(ctx, t2)
	assert.True(t, errors.Is(err, errors.PoolExhausted), "got %v", err)
	assert.True(t, errors.Retryable(err))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// Backpressure clears once the first handle lets go.
	require.NoError(t, m.Release(t1))
	_, err = m.Acquire(ctx, t2)
	assert.NoError(t, err)
}

func TestIsolationBetweenHandles(t *testing.T) {
	m := openTestManager(t, nil)
	ctx := context.Background()

	t1, t2 := m.Begin(), m.Begin()
	defer m.Release(t1)
	defer m.Release(t2)

	c1, err := m.Acquire(ctx, t1)
	require.NoError(t, err)
	_, err = c1.Exec(ctx, "INSERT INTO KV (K, V) VALUES (?, ?)", "a", "1")
	require.NoError(t, err)

	c2, err := m.Acquire(ctx, t2)
	require.NoError(t, err)
	_, err = readKV(t, c2, "a")
	assert.Equal(t, sql.ErrNoRows, err)
	// End t2's read snapshot before looking again.
	require.NoError(t, m.Commit(t2))

	require.NoError(t, m.Commit(t1))

	c2, err = m.Acquire(ctx, t2)
	require.NoError(t, err)
	v, err := readKV(t, c2, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestTranslate_Conflict(t *testing.T) {
	m := openTestManager(t, func(c *types.Config) { c.AutoCommit = true })
	ctx := context.Background()
	c := m.Pool()

	_, err := c.Exec(ctx, "INSERT INTO KV (K, V) VALUES (?, ?)", "a", "1")
	require.NoError(t, err)
	_, err = c.Exec(ctx, "INSERT INTO KV (K, V) VALUES (?, ?)", "a", "2")
	assert.True(t, errors.Is(err, errors.Conflict), "got %v", err)
}

func TestWithTx(t *testing.T) {
	m := openTestManager(t, nil)
	ctx := context.Background()

	err := m.WithTx(ctx, func(c *Conn) error {
		_, err := c.Exec(ctx, "INSERT INTO KV (K, V) VALUES (?, ?)", "a", "1")
		if err != nil {
			return err
		}
		return errors.New(errors.InvalidData, "stop")
	})
	assert.True(t, errors.Is(err, errors.InvalidData))
	_, err = readKV(t, m.Pool(), "a")
	assert.Equal(t, sql.ErrNoRows, err)

	require.NoError(t, m.WithTx(ctx, func(c *Conn) error {
		_, err := c.Exec(ctx, "INSERT INTO KV (K, V) VALUES (?, ?)", "a", "1")
		return err
	}))
	v, err := readKV(t, m.Pool(), "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestClose(t *testing.T) {
	m := openTestManager(t, nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	_, err := m.Acquire(context.Background(), m.Begin())
	assert.True(t, errors.Is(err, errors.ConnectionError), "got %v", err)
}
