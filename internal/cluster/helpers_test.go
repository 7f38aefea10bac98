package cluster

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// newTestRegistry opens an auto-commit SQLite pool in a temp dir and creates
// every cluster table.
func newTestRegistry(t *testing.T) (*Registry, *sqldb.Manager, sqldb.Querier) {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "db")
	cfg.AutoCommit = true
	cfg.MaxPoolSize = 4
	cfg.MinIdle = 1

	m, err := sqldb.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	r := NewRegistry(cfg, nil)
	q := m.Pool()
	require.NoError(t, r.EnsureSchema(context.Background(), q))
	return r, m, q
}

var testTime = time.Date(2024, 3, 9, 14, 30, 15, 123456000, time.UTC)

func sampleEvent(id int) *types.Event {
	return &types.Event{
		ID:                  id,
		AgentID:             uuid.MustParse("6f1b3a84-1c1e-4f57-9d0f-0b6f2a1f0a01"),
		DelegateID:          uuid.NullUUID{UUID: uuid.MustParse("6f1b3a84-1c1e-4f57-9d0f-0b6f2a1f0a02"), Valid: true},
		AgentRole:           "Admin",
		SchemaName:          "Foo",
		SchemaVersion:       0,
		StateMachineName:    "Default",
		StateMachineVersion: 0,
		StepName:            "EditDefinition",
		StepPath:            "workflow/domain/EditDefinition",
		StepType:            "ElementaryActivity",
		OriginStateID:       0,
		TargetStateID:       1,
		TransitionID:        2,
		ViewName:            "last",
		HasAttachment:       false,
		Timestamp:           testTime,
	}
}

func sampleJob(id int) *types.Job {
	return &types.Job{
		ID:              id,
		ItemID:          uuid.MustParse("6f1b3a84-1c1e-4f57-9d0f-0b6f2a1f0a03"),
		StepName:        "Review",
		StepPath:        "workflow/domain/Review",
		StepType:        "ElementaryActivity",
		Transition:      "<Transition id='0' name='Start'/>",
		OriginStateName: "Waiting",
		TargetStateName: "Started",
		AgentRole:       "Reviewer",
		ActProperties:   "<CastorHashMap/>",
		CreatedAt:       testTime,
	}
}
