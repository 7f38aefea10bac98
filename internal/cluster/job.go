package cluster

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// JobTable stores Job records.
const JobTable = "JOB"

var (
	_ Handler   = (*JobHandler)(nil)
	_ Sequencer = (*JobHandler)(nil)
)

// JobHandler serves the Job cluster. Jobs are never updated; the workflow
// engine deletes and recreates the whole set when it recomputes them.
type JobHandler struct {
	table
}

// NewJobHandler returns the Job handler.
func NewJobHandler(cfg types.Config) *JobHandler {
	return &JobHandler{table{
		typ:  types.JobCluster,
		name: JobTable,
		keys: []keyColumn{{name: "ID", numeric: true}},
		values: []string{
			"ITEM_UUID", "STEP_NAME", "STEP_PATH", "STEP_TYPE", "TRANSITION",
			"ORIGIN_STATE_NAME", "TARGET_STATE_NAME", "AGENT_ROLE",
			"ACT_PROPERTIES", "CREATION_TS",
		},
		cfg: cfg,
		ddlBody: func(ct sqldb.ColumnTypes) string {
			return fmt.Sprintf(`    ID %[3]s NOT NULL,
    ITEM_UUID %[1]s NOT NULL,
    STEP_NAME %[2]s NOT NULL,
    STEP_PATH %[4]s NOT NULL,
    STEP_TYPE %[2]s,
    TRANSITION %[5]s,
    ORIGIN_STATE_NAME %[2]s,
    TARGET_STATE_NAME %[2]s,
    AGENT_ROLE %[2]s,
    ACT_PROPERTIES %[5]s,
    CREATION_TS %[6]s NOT NULL`, ct.UUID, ct.Name, ct.Int, ct.String, ct.Text, ct.Timestamp)
		},
	}}
}

type jobRow struct {
	ItemID          uuid.UUID      `db:"item_uuid"`
	StepName        string         `db:"step_name"`
	StepPath        string         `db:"step_path"`
	StepType        sql.NullString `db:"step_type"`
	Transition      sql.NullString `db:"transition"`
	OriginStateName sql.NullString `db:"origin_state_name"`
	TargetStateName sql.NullString `db:"target_state_name"`
	AgentRole       sql.NullString `db:"agent_role"`
	ActProperties   sql.NullString `db:"act_properties"`
	CreatedAt       time.Time      `db:"creation_ts"`
}

func (h *JobHandler) Fetch(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (types.Record, error) {
	r, err := fetchStruct[jobRow](ctx, &h.table, q, id, keys)
	if err != nil {
		return nil, err
	}
	jobID, _ := strconv.Atoi(keys[0])
	return &types.Job{
		ID:              jobID,
		ItemID:          r.ItemID,
		StepName:        r.StepName,
		StepPath:        r.StepPath,
		StepType:        r.StepType.String,
		Transition:      r.Transition.String,
		OriginStateName: r.OriginStateName.String,
		TargetStateName: r.TargetStateName.String,
		AgentRole:       r.AgentRole.String,
		ActProperties:   r.ActProperties.String,
		CreatedAt:       r.CreatedAt.UTC(),
	}, nil
}

func (h *JobHandler) Put(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	return put(ctx, h, q, id, rec)
}

func (h *JobHandler) Insert(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	j, ok := rec.(*types.Job)
	if !ok || j == nil {
		return 0, wrongRecord(h.typ, rec)
	}
	if j.ID < 0 {
		return 0, errors.Newf(errors.InvalidData, "job id must not be negative, got %d", j.ID)
	}
	if j.CreatedAt.IsZero() {
		return 0, errors.New(errors.InvalidData, "job creation time must be set")
	}
	return h.insert(ctx, q, id, j.ID,
		j.ItemID, j.StepName, j.StepPath, nullString(j.StepType), nullString(j.Transition),
		nullString(j.OriginStateName), nullString(j.TargetStateName), nullString(j.AgentRole),
		nullString(j.ActProperties), j.CreatedAt.UTC(),
	)
}

func (h *JobHandler) LastID(ctx context.Context, q sqldb.Querier, id types.EntityID) (int, error) {
	return h.lastID(ctx, q, id)
}
