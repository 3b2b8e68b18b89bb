package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-b2b/internal/db"
)

// Queries is the audit persistence.
type Queries struct {
	db db.DBTX
}

// New binds queries to a connection.
func New(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const entryColumns = `id, actor_id, actor_roles, action, resource_type, resource_id, method, route, status, ip, request_id, metadata, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ActorID, &e.ActorRoles, &e.Action, &e.ResourceType, &e.ResourceID,
		&e.Method, &e.Route, &e.Status, &e.IP, &e.RequestID, &e.Metadata, &e.CreatedAt)
	return e, err
}

// Insert stores an entry.
func (q *Queries) Insert(ctx context.Context, e Entry) (Entry, error) {
	if e.ActorRoles == nil {
		e.ActorRoles = []string{}
	}
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}
	row := q.db.QueryRow(ctx, `
		INSERT INTO audit_logs (actor_id, actor_roles, action, resource_type, resource_id, method, route, status, ip, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+entryColumns,
		e.ActorID, e.ActorRoles, e.Action, e.ResourceType, e.ResourceID, e.Method, e.Route, e.Status, e.IP, e.RequestID, metadata)
	out, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("insert audit log: %w", err)
	}
	return out, nil
}

// List returns entries newest first with the total match count.
func (q *Queries) List(ctx context.Context, p ListParams) ([]Entry, int, error) {
	var (
		where []string
		args  []any
	)
	if p.ResourceType != "" {
		args = append(args, p.ResourceType)
		where = append(where, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if p.ResourceID != "" {
		args = append(args, p.ResourceID)
		where = append(where, fmt.Sprintf("resource_id = $%d", len(args)))
	}
	if p.ActorID != nil {
		args = append(args, *p.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM audit_logs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	args = append(args, p.Limit, p.Offset)
	rows, err := q.db.Query(ctx, `SELECT `+entryColumns+` FROM audit_logs`+clause+
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
