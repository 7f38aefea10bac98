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

// HistoryTable stores Event records.
const HistoryTable = "EVENT"

// HistoryTimestampColumn is the event time, used to window exports.
const HistoryTimestampColumn = "EVENT_TS"

var (
	_ Handler   = (*HistoryHandler)(nil)
	_ Sequencer = (*HistoryHandler)(nil)
)

// HistoryHandler serves the append-only audit trail: (id, event id) to an
// immutable Event.
type HistoryHandler struct {
	table
}

// NewHistoryHandler returns the audit trail handler.
func NewHistoryHandler(cfg types.Config) *HistoryHandler {
	return &HistoryHandler{table{
		typ:  types.HistoryCluster,
		name: HistoryTable,
		keys: []keyColumn{{name: "ID", numeric: true}},
		values: []string{
			"AGENT_UUID", "DELEGATE_UUID", "AGENT_ROLE",
			"SCHEMA_NAME", "SCHEMA_VERSION",
			"STATEMACHINE_NAME", "STATEMACHINE_VERSION",
			"STEP_NAME", "STEP_PATH", "STEP_TYPE",
			"ORIGIN_STATE_ID", "TARGET_STATE_ID", "TRANSITION_ID",
			"VIEW_NAME", "HAS_ATTACHMENT", HistoryTimestampColumn,
		},
		cfg: cfg,
		ddlBody: func(ct sqldb.ColumnTypes) string {
			return fmt.Sprintf(`    ID %[3]s NOT NULL,
    AGENT_UUID %[1]s NOT NULL,
    DELEGATE_UUID %[1]s,
    AGENT_ROLE %[2]s,
    SCHEMA_NAME %[2]s,
    SCHEMA_VERSION %[3]s,
    STATEMACHINE_NAME %[2]s NOT NULL,
    STATEMACHINE_VERSION %[3]s NOT NULL,
    STEP_NAME %[2]s NOT NULL,
    STEP_PATH %[4]s NOT NULL,
    STEP_TYPE %[2]s,
    ORIGIN_STATE_ID %[3]s NOT NULL,
    TARGET_STATE_ID %[3]s NOT NULL,
    TRANSITION_ID %[3]s NOT NULL,
    VIEW_NAME %[2]s,
    HAS_ATTACHMENT %[5]s NOT NULL,
    EVENT_TS %[6]s NOT NULL`, ct.UUID, ct.Name, ct.Int, ct.String, ct.Bool, ct.Timestamp)
		},
	}}
}

// eventRow is the EVENT row as scanned; nullable columns map to the
// zero value of the Event field.
type eventRow struct {
	AgentID             uuid.UUID      `db:"agent_uuid"`
	DelegateID          uuid.NullUUID  `db:"delegate_uuid"`
	AgentRole           sql.NullString `db:"agent_role"`
	SchemaName          sql.NullString `db:"schema_name"`
	SchemaVersion       sql.NullInt64  `db:"schema_version"`
	StateMachineName    string         `db:"statemachine_name"`
	StateMachineVersion int            `db:"statemachine_version"`
	StepName            string         `db:"step_name"`
	StepPath            string         `db:"step_path"`
	StepType            sql.NullString `db:"step_type"`
	OriginStateID       int            `db:"origin_state_id"`
	TargetStateID       int            `db:"target_state_id"`
	TransitionID        int            `db:"transition_id"`
	ViewName            sql.NullString `db:"view_name"`
	HasAttachment       bool           `db:"has_attachment"`
	Timestamp           time.Time      `db:"event_ts"`
}

func (h *HistoryHandler) Fetch(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (types.Record, error) {
	r, err := fetchStruct[eventRow](ctx, &h.table, q, id, keys)
	if err != nil {
		return nil, err
	}
	eventID, _ := strconv.Atoi(keys[0])
	return &types.Event{
		ID:                  eventID,
		AgentID:             r.AgentID,
		DelegateID:          r.DelegateID,
		AgentRole:           r.AgentRole.String,
		SchemaName:          r.SchemaName.String,
		SchemaVersion:       int(r.SchemaVersion.Int64),
		StateMachineName:    r.StateMachineName,
		StateMachineVersion: r.StateMachineVersion,
		StepName:            r.StepName,
		StepPath:            r.StepPath,
		StepType:            r.StepType.String,
		OriginStateID:       r.OriginStateID,
		TargetStateID:       r.TargetStateID,
		TransitionID:        r.TransitionID,
		ViewName:            r.ViewName.String,
		HasAttachment:       r.HasAttachment,
		Timestamp:           r.Timestamp.UTC(),
	}, nil
}

func (h *HistoryHandler) Put(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	return put(ctx, h, q, id, rec)
}

func (h *HistoryHandler) Insert(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	e, ok := rec.(*types.Event)
	if !ok || e == nil {
		return 0, wrongRecord(h.typ, rec)
	}
	if e.ID < 0 {
		return 0, errors.Newf(errors.InvalidData, "event id must not be negative, got %d", e.ID)
	}
	if e.Timestamp.IsZero() {
		return 0, errors.New(errors.InvalidData, "event timestamp must be set")
	}
	return h.insert(ctx, q, id, e.ID,
		e.AgentID, e.DelegateID, nullString(e.AgentRole),
		nullString(e.SchemaName), e.SchemaVersion,
		e.StateMachineName, e.StateMachineVersion,
		e.StepName, e.StepPath, nullString(e.StepType),
		e.OriginStateID, e.TargetStateID, e.TransitionID,
		nullString(e.ViewName), e.HasAttachment, e.Timestamp.UTC(),
	)
}

func (h *HistoryHandler) LastID(ctx context.Context, q sqldb.Querier, id types.EntityID) (int, error) {
	return h.lastID(ctx, q, id)
}
