package backend

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"wastelink/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// NewPostgresDB wraps an existing handle.
func NewPostgresDB(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Migrate applies the embedded schema files in name order. They are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := migrations.ReadFile(n)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", n, err)
		}
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

const requestCols = `id, resident_id, waste_type, volume, volume_kg, status, lat, lng, address, notes, urgency, created_at`

type scanner interface{ Scan(dest ...any) error }

func scanRequest(s scanner) (model.PickupRequest, error) {
	var r model.PickupRequest
	var lat, lng sql.NullFloat64
	if err := s.Scan(&r.ID, &r.ResidentID, &r.WasteType, &r.Volume, &r.VolumeKg, &r.Status, &lat, &lng, &r.Address, &r.Notes, &r.Urgency, &r.CreatedAt); err != nil {
		return r, err
	}
	if lat.Valid && lng.Valid {
		r.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (p *Postgres) ListRequests(ctx context.Context, residentID string) ([]model.PickupRequest, error) {
	var rows *sql.Rows
	var err error
	if residentID != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+requestCols+` FROM pickup_requests WHERE resident_id=$1 ORDER BY created_at DESC, id DESC`, residentID)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+requestCols+` FROM pickup_requests ORDER BY created_at DESC, id DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PickupRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) GetRequest(ctx context.Context, id string) (model.PickupRequest, error) {
	r, err := scanRequest(p.db.QueryRowContext(ctx, `SELECT `+requestCols+` FROM pickup_requests WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (p *Postgres) CreateRequest(ctx context.Context, r model.PickupRequest) (model.PickupRequest, error) {
	if r.ID == "" {
		r.ID = "req_" + uuid.NewString()
	}
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	var lat, lng any
	if r.Location != nil {
		lat, lng = r.Location.Lat, r.Location.Lng
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO pickup_requests (`+requestCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.ResidentID, string(r.WasteType), string(r.Volume), r.VolumeKg, string(r.Status), lat, lng, r.Address, r.Notes, string(r.Urgency), r.CreatedAt)
	if err != nil {
		return model.PickupRequest{}, err
	}
	return r, nil
}

func (p *Postgres) UpdateRequestStatus(ctx context.Context, id string, to model.RequestStatus, reason string) (model.PickupRequest, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.PickupRequest{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var from model.RequestStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM pickup_requests WHERE id=$1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PickupRequest{}, ErrNotFound
	}
	if err != nil {
		return model.PickupRequest{}, err
	}
	if !model.CanTransition(from, to) {
		return model.PickupRequest{}, &model.InvalidTransitionError{ID: id, From: from, To: to}
	}
	r, err := scanRequest(tx.QueryRowContext(ctx, `UPDATE pickup_requests SET status=$2, cancel_reason=CASE WHEN $3 <> '' THEN $3 ELSE cancel_reason END WHERE id=$1 RETURNING `+requestCols, id, string(to), reason))
	if err != nil {
		return model.PickupRequest{}, err
	}
	if cond := followingTasks(to); cond != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE collector_tasks SET status=$2 WHERE request_id=$1 AND `+cond, id, string(to)); err != nil {
			return model.PickupRequest{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.PickupRequest{}, err
	}
	return r, nil
}

// followingTasks is the SQL form of model.TaskFollows for a request moving to to.
func followingTasks(to model.RequestStatus) string {
	switch {
	case to.Terminal():
		return `status NOT IN ('completed','cancelled')`
	case to == model.StatusInProgress:
		return `status = 'assigned'`
	}
	return ""
}

const taskCols = `id, request_id, collector_id, status, estimated_time, route, distance_km`

func scanTask(s scanner) (model.CollectorTask, error) {
	var t model.CollectorTask
	var route []byte
	if err := s.Scan(&t.ID, &t.RequestID, &t.CollectorID, &t.Status, &t.EstimatedTime, &route, &t.DistanceKm); err != nil {
		return t, err
	}
	if len(route) > 0 {
		if err := json.Unmarshal(route, &t.Route); err != nil {
			return t, fmt.Errorf("task %s route: %w", t.ID, err)
		}
	}
	if len(t.Route) == 0 {
		t.Route = nil
	}
	return t, nil
}

func (p *Postgres) ListTasks(ctx context.Context, collectorID string) ([]model.CollectorTask, error) {
	var rows *sql.Rows
	var err error
	if collectorID != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+taskCols+` FROM collector_tasks WHERE collector_id=$1 ORDER BY created_at, id`, collectorID)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+taskCols+` FROM collector_tasks ORDER BY created_at, id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.CollectorTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateTask(ctx context.Context, t model.CollectorTask) (model.CollectorTask, error) {
	if t.ID == "" {
		t.ID = "task_" + uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	route, err := json.Marshal(nonNilRoute(t.Route))
	if err != nil {
		return model.CollectorTask{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO collector_tasks (`+taskCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET request_id=EXCLUDED.request_id, collector_id=EXCLUDED.collector_id, status=EXCLUDED.status,
		estimated_time=EXCLUDED.estimated_time, route=EXCLUDED.route, distance_km=EXCLUDED.distance_km`,
		t.ID, t.RequestID, t.CollectorID, string(t.Status), t.EstimatedTime, route, t.DistanceKm)
	if err != nil {
		return model.CollectorTask{}, err
	}
	return t, nil
}

func nonNilRoute(r []model.GeoPoint) []model.GeoPoint {
	if r == nil {
		return []model.GeoPoint{}
	}
	return r
}

// AssignTask sets the task's collector. A pending linked request moves to
// assigned. Tasks past assignment, or whose request has ended, are rejected.
func (p *Postgres) AssignTask(ctx context.Context, taskID, collectorID string) (model.CollectorTask, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.CollectorTask{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var from, reqStatus model.RequestStatus
	var requestID string
	err = tx.QueryRowContext(ctx, `SELECT t.status, t.request_id, coalesce(r.status, '') FROM collector_tasks t
		LEFT JOIN pickup_requests r ON r.id = t.request_id WHERE t.id=$1 FOR UPDATE OF t`, taskID).Scan(&from, &requestID, &reqStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CollectorTask{}, ErrNotFound
	}
	if err != nil {
		return model.CollectorTask{}, err
	}
	if !model.CanAssign(from) {
		return model.CollectorTask{}, &model.InvalidTransitionError{ID: taskID, From: from, To: model.StatusAssigned}
	}
	if reqStatus.Terminal() {
		return model.CollectorTask{}, &model.InvalidTransitionError{ID: requestID, From: reqStatus, To: model.StatusAssigned}
	}
	t, err := scanTask(tx.QueryRowContext(ctx, `UPDATE collector_tasks SET collector_id=$2, status='assigned' WHERE id=$1 RETURNING `+taskCols, taskID, collectorID))
	if err != nil {
		return model.CollectorTask{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pickup_requests SET status='assigned' WHERE id=$1 AND status='pending'`, requestID); err != nil {
		return model.CollectorTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.CollectorTask{}, err
	}
	return t, nil
}

func (p *Postgres) UpsertCollector(ctx context.Context, c model.Collector) error {
	if c.Status == "" {
		c.Status = model.CollectorOffline
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO collectors (id, name, status, approved, active) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, status=EXCLUDED.status, approved=EXCLUDED.approved, active=EXCLUDED.active`,
		c.ID, c.Name, string(c.Status), c.Approved, c.Active)
	return err
}

func (p *Postgres) PatchCollector(ctx context.Context, id string, patch CollectorPatch) (model.Collector, error) {
	var c model.Collector
	err := p.db.QueryRowContext(ctx, `UPDATE collectors SET approved=coalesce($2, approved), active=coalesce($3, active)
		WHERE id=$1 RETURNING id, name, status, approved, active`, id, patch.Approved, patch.Active).
		Scan(&c.ID, &c.Name, &c.Status, &c.Approved, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Collector{}, ErrNotFound
	}
	return c, err
}

func (p *Postgres) ListCollectors(ctx context.Context) ([]model.Collector, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, status, approved, active FROM collectors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Collector{}
	for rows.Next() {
		var c model.Collector
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.Approved, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) Stats(ctx context.Context, now time.Time) (Stats, error) {
	thisStart, lastStart := monthBounds(now)
	var s Stats
	err := p.db.QueryRowContext(ctx, `SELECT count(*),
		count(*) FILTER (WHERE status='completed'),
		count(*) FILTER (WHERE created_at >= $1),
		count(*) FILTER (WHERE created_at >= $2 AND created_at < $1)
		FROM pickup_requests`, thisStart, lastStart).Scan(&s.TotalRequests, &s.CompletedRequests, &s.ThisMonth, &s.LastMonth)
	if err != nil {
		return Stats{}, err
	}
	err = p.db.QueryRowContext(ctx, `SELECT count(*) FROM collectors WHERE active AND approved AND status <> 'offline'`).Scan(&s.ActiveCollectors)
	if err != nil {
		return Stats{}, err
	}
	return s, nil
}
