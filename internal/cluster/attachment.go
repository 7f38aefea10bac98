package cluster

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/mesh-intelligence/clusterstore/internal/sqldb"
	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// AttachmentTable stores Attachment records.
const AttachmentTable = "ATTACHMENT"

var _ Handler = (*AttachmentHandler)(nil)

// AttachmentHandler serves the append-only Attachment cluster, keyed like
// outcomes and holding a binary payload with its MIME type.
type AttachmentHandler struct {
	table
}

// NewAttachmentHandler returns the Attachment handler.
func NewAttachmentHandler(cfg types.Config) *AttachmentHandler {
	return &AttachmentHandler{table{
		typ:  types.AttachmentCluster,
		name: AttachmentTable,
		keys: []keyColumn{
			{name: "SCHEMA_NAME"},
			{name: "SCHEMA_VERSION", numeric: true},
			{name: "EVENT_ID", numeric: true},
		},
		values: []string{"MIME_TYPE", "DATA"},
		cfg:    cfg,
		ddlBody: func(ct sqldb.ColumnTypes) string {
			return fmt.Sprintf("    SCHEMA_NAME %s NOT NULL,\n    SCHEMA_VERSION %s NOT NULL,\n    EVENT_ID %s NOT NULL,\n    MIME_TYPE %s,\n    DATA %s",
				ct.Name, ct.Int, ct.Int, ct.Name, ct.Blob)
		},
	}}
}

func (h *AttachmentHandler) Fetch(ctx context.Context, q sqldb.Querier, id types.EntityID, keys ...string) (types.Record, error) {
	row, err := h.selectRow(ctx, q, id, keys)
	if err != nil {
		return nil, err
	}
	a := &types.Attachment{SchemaName: keys[0]}
	a.SchemaVersion, _ = strconv.Atoi(keys[1])
	a.EventID, _ = strconv.Atoi(keys[2])
	var mime sql.NullString
	if err := row.Scan(&mime, &a.Data); err != nil {
		return nil, h.scanErr(err, id, keys)
	}
	a.MimeType = mime.String
	return a, nil
}

func (h *AttachmentHandler) Put(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	return put(ctx, h, q, id, rec)
}

func (h *AttachmentHandler) Insert(ctx context.Context, q sqldb.Querier, id types.EntityID, rec types.Record) (int64, error) {
	a, ok := rec.(*types.Attachment)
	if !ok || a == nil {
		return 0, wrongRecord(h.typ, rec)
	}
	if a.SchemaName == "" {
		return 0, errors.New(errors.InvalidData, "attachment schema name must not be empty")
	}
	return h.insert(ctx, q, id, a.SchemaName, a.SchemaVersion, a.EventID, nullString(a.MimeType), a.Data)
}
