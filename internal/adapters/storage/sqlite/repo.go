package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/weldtrack/internal/app"
	"github.com/hylla/weldtrack/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// dsnPragmas apply per connection, so every pooled connection enforces foreign keys.
const dsnPragmas = "_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"

// dateLayout stores submission work dates so lexical order is calendar order.
const dateLayout = time.DateOnly

// Repository implements app.Repository on SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens (creating when needed) the database at path and applies migrations.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	return openDSN(filepath.Clean(path) + "?" + dsnPragmas)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	return openDSN("file:weldtrack-" + uuid.NewString() + "?mode=memory&cache=shared&" + dsnPragmas)
}

func openDSN(dsn string) (*Repository, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate creates the schema.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fluids (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS lines (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			material TEXT NOT NULL,
			fluid_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(fluid_id) REFERENCES fluids(id)
		);`,
		`CREATE TABLE IF NOT EXISTS joints (
			id TEXT PRIMARY KEY,
			line_id TEXT NOT NULL,
			number TEXT NOT NULL,
			diameter REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(line_id) REFERENCES lines(id)
		);`,
		`CREATE TABLE IF NOT EXISTS status_events (
			id TEXT PRIMARY KEY,
			joint_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			submission_id TEXT NOT NULL DEFAULT '',
			occurred_at TEXT NOT NULL,
			FOREIGN KEY(joint_id) REFERENCES joints(id)
		);`,
		`CREATE TABLE IF NOT EXISTS activity_submissions (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			type_label TEXT NOT NULL,
			work_date TEXT NOT NULL,
			hours REAL NOT NULL DEFAULT 0,
			crew_json TEXT NOT NULL DEFAULT '{}',
			line_id TEXT NOT NULL DEFAULT '',
			material TEXT NOT NULL DEFAULT '',
			family TEXT NOT NULL,
			detail_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS baseline_rates (
			material TEXT PRIMARY KEY,
			hours_per_diameter REAL NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_joints_line_number ON joints(line_id, number);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_status_events_occurrence ON status_events(joint_id, kind, submission_id) WHERE submission_id <> '';`,
		`CREATE INDEX IF NOT EXISTS idx_status_events_joint_occurred ON status_events(joint_id, occurred_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_work_date ON activity_submissions(work_date, created_at, id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateFluid inserts a fluid.
func (r *Repository) CreateFluid(ctx context.Context, f domain.Fluid) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO fluids(id, name, created_at) VALUES (?, ?, ?)`, f.ID, f.Name, ts(f.CreatedAt))
	return translateWriteErr(err)
}

// ListFluids lists fluids by name.
func (r *Repository) ListFluids(ctx context.Context) ([]domain.Fluid, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM fluids ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Fluid{}
	for rows.Next() {
		var (
			f          domain.Fluid
			createdRaw string
		)
		if err := rows.Scan(&f.ID, &f.Name, &createdRaw); err != nil {
			return nil, err
		}
		f.CreatedAt = parseTS(createdRaw)
		out = append(out, f)
	}
	return out, rows.Err()
}

// CreateLine inserts a line.
func (r *Repository) CreateLine(ctx context.Context, l domain.Line) error {
	return insertLine(ctx, r.db, l)
}

// CreateLines inserts lines in one transaction, reporting each item separately.
func (r *Repository) CreateLines(ctx context.Context, lines []domain.Line) ([]error, error) {
	return insertBatch(ctx, r.db, lines, insertLine)
}

// GetLine returns one line.
func (r *Repository) GetLine(ctx context.Context, id string) (domain.Line, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, material, fluid_id, created_at FROM lines WHERE id = ?`, id)
	return scanLine(row)
}

// ListLines lists lines by name.
func (r *Repository) ListLines(ctx context.Context) ([]domain.Line, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, material, fluid_id, created_at FROM lines ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Line{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

// CreateJoint inserts a joint.
func (r *Repository) CreateJoint(ctx context.Context, j domain.Joint) error {
	return insertJoint(ctx, r.db, j)
}

// CreateJoints inserts joints in one transaction, reporting each item separately.
func (r *Repository) CreateJoints(ctx context.Context, joints []domain.Joint) ([]error, error) {
	return insertBatch(ctx, r.db, joints, insertJoint)
}

// UpdateJoint stores a corrected joint.
func (r *Repository) UpdateJoint(ctx context.Context, j domain.Joint) error {
	res, err := r.db.ExecContext(ctx, `UPDATE joints SET diameter = ?, updated_at = ? WHERE id = ?`, j.Diameter, ts(j.UpdatedAt), j.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetJoint returns one joint.
func (r *Repository) GetJoint(ctx context.Context, id string) (domain.Joint, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, line_id, number, diameter, created_at, updated_at FROM joints WHERE id = ?`, id)
	return scanJoint(row)
}

// ListJoints returns one page of joints of a line, or of every line when lineID is empty.
func (r *Repository) ListJoints(ctx context.Context, lineID string, page app.Page) ([]domain.Joint, error) {
	query := `SELECT id, line_id, number, diameter, created_at, updated_at FROM joints`
	args := []any{}
	if lineID != "" {
		query += ` WHERE line_id = ?`
		args = append(args, lineID)
	}
	query += ` ORDER BY line_id ASC, number ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, pageArgs(page)...)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Joint{}
	for rows.Next() {
		joint, err := scanJoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, joint)
	}
	return out, rows.Err()
}

// AppendStatusEvent inserts a ledger event. A repeated (joint, kind, submission) yields app.ErrDuplicateKey.
func (r *Repository) AppendStatusEvent(ctx context.Context, e domain.StatusEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO status_events(id, joint_id, kind, submission_id, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.JointID, string(e.Kind), e.SubmissionID, ts(e.OccurredAt))
	return translateWriteErr(err)
}

// ListStatusEvents returns one page of events in (occurred_at, id) order.
func (r *Repository) ListStatusEvents(ctx context.Context, filter app.StatusEventFilter, page app.Page) ([]domain.StatusEvent, error) {
	query := `
		SELECT e.id, e.joint_id, e.kind, e.submission_id, e.occurred_at
		FROM status_events e
		JOIN joints j ON j.id = e.joint_id
		WHERE 1 = 1
	`
	args := []any{}
	if filter.JointID != "" {
		query += ` AND e.joint_id = ?`
		args = append(args, filter.JointID)
	}
	if filter.LineID != "" {
		query += ` AND j.line_id = ?`
		args = append(args, filter.LineID)
	}
	query += ` ORDER BY e.occurred_at ASC, e.id ASC LIMIT ? OFFSET ?`
	args = append(args, pageArgs(page)...)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.StatusEvent{}
	for rows.Next() {
		var (
			e           domain.StatusEvent
			kindRaw     string
			occurredRaw string
		)
		if err := rows.Scan(&e.ID, &e.JointID, &kindRaw, &e.SubmissionID, &occurredRaw); err != nil {
			return nil, err
		}
		e.Kind = domain.ActivityKind(kindRaw)
		e.OccurredAt = parseTS(occurredRaw)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateSubmission inserts an activity submission.
func (r *Repository) CreateSubmission(ctx context.Context, s domain.ActivitySubmission) error {
	return insertSubmission(ctx, r.db, s)
}

// CreateSubmissions inserts submissions in one transaction, reporting each item separately.
func (r *Repository) CreateSubmissions(ctx context.Context, subs []domain.ActivitySubmission) ([]error, error) {
	return insertBatch(ctx, r.db, subs, insertSubmission)
}

// ListSubmissions returns one page of submissions ordered by work date.
func (r *Repository) ListSubmissions(ctx context.Context, filter app.SubmissionFilter, page app.Page) ([]domain.ActivitySubmission, error) {
	query := `
		SELECT id, parent_id, kind, type_label, work_date, hours, crew_json, line_id, material, family, detail_json, created_at
		FROM activity_submissions
		WHERE 1 = 1
	`
	args := []any{}
	if filter.From != nil {
		query += ` AND work_date >= ?`
		args = append(args, filter.From.UTC().Format(dateLayout))
	}
	if filter.To != nil {
		query += ` AND work_date <= ?`
		args = append(args, filter.To.UTC().Format(dateLayout))
	}
	query += ` ORDER BY work_date ASC, created_at ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, pageArgs(page)...)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ActivitySubmission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// GetBaselineRate returns the configured rate for a material.
func (r *Repository) GetBaselineRate(ctx context.Context, material domain.MaterialClass) (domain.BaselineRate, error) {
	var rate domain.BaselineRate
	var materialRaw string
	err := r.db.QueryRowContext(ctx, `SELECT material, hours_per_diameter FROM baseline_rates WHERE material = ?`, string(material)).
		Scan(&materialRaw, &rate.HoursPerDiameter)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BaselineRate{}, app.ErrNotFound
	}
	if err != nil {
		return domain.BaselineRate{}, err
	}
	rate.Material = domain.MaterialClass(materialRaw)
	return rate, nil
}

// UpsertBaselineRate stores or replaces a material's rate.
func (r *Repository) UpsertBaselineRate(ctx context.Context, rate domain.BaselineRate) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO baseline_rates(material, hours_per_diameter) VALUES (?, ?)
		ON CONFLICT(material) DO UPDATE SET hours_per_diameter = excluded.hours_per_diameter
	`, string(rate.Material), rate.HoursPerDiameter)
	return err
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// insertBatch writes items in one transaction. SQLite aborts only the failing statement, so one
// bad item does not poison the rest; a failed begin or commit fails the whole chunk.
func insertBatch[T any](ctx context.Context, db *sql.DB, items []T, insert func(context.Context, execerContext, T) error) ([]error, error) {
	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	for i, item := range items {
		errs[i] = insert(ctx, tx, item)
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return errs, nil
}

func insertLine(ctx context.Context, x execerContext, l domain.Line) error {
	_, err := x.ExecContext(ctx, `
		INSERT INTO lines(id, name, material, fluid_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, l.ID, l.Name, string(l.Material), l.FluidID, ts(l.CreatedAt))
	return translateWriteErr(err)
}

func insertJoint(ctx context.Context, x execerContext, j domain.Joint) error {
	_, err := x.ExecContext(ctx, `
		INSERT INTO joints(id, line_id, number, diameter, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, j.ID, j.LineID, j.Number, j.Diameter, ts(j.CreatedAt), ts(j.UpdatedAt))
	return translateWriteErr(err)
}

func insertSubmission(ctx context.Context, x execerContext, s domain.ActivitySubmission) error {
	crewJSON, err := json.Marshal(s.Crew)
	if err != nil {
		return err
	}
	family, detailJSON, err := domain.EncodeDetail(s.Detail)
	if err != nil {
		return err
	}
	_, err = x.ExecContext(ctx, `
		INSERT INTO activity_submissions(
			id, parent_id, kind, type_label, work_date, hours, crew_json, line_id, material, family, detail_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.ParentID,
		string(s.Kind),
		s.TypeLabel,
		s.Date.UTC().Format(dateLayout),
		s.Hours,
		string(crewJSON),
		s.LineID,
		string(s.Material),
		string(family),
		string(detailJSON),
		ts(s.CreatedAt),
	)
	return translateWriteErr(err)
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

func scanLine(s scanner) (domain.Line, error) {
	var (
		l           domain.Line
		materialRaw string
		createdRaw  string
	)
	if err := s.Scan(&l.ID, &l.Name, &materialRaw, &l.FluidID, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Line{}, app.ErrNotFound
		}
		return domain.Line{}, err
	}
	l.Material = domain.MaterialClass(materialRaw)
	l.CreatedAt = parseTS(createdRaw)
	return l, nil
}

// scanJoint reads diameter as text; values a REAL column could not hold, such as 4" or n/a, coerce to 0.
func scanJoint(s scanner) (domain.Joint, error) {
	var (
		j           domain.Joint
		diameterRaw string
		createdRaw  string
		updatedRaw  string
	)
	if err := s.Scan(&j.ID, &j.LineID, &j.Number, &diameterRaw, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Joint{}, app.ErrNotFound
		}
		return domain.Joint{}, err
	}
	j.Diameter = domain.CoerceNumber(diameterRaw)
	j.CreatedAt = parseTS(createdRaw)
	j.UpdatedAt = parseTS(updatedRaw)
	return j, nil
}

func scanSubmission(s scanner) (domain.ActivitySubmission, error) {
	var (
		sub         domain.ActivitySubmission
		kindRaw     string
		dateRaw     string
		crewRaw     string
		materialRaw string
		familyRaw   string
		detailRaw   string
		createdRaw  string
	)
	if err := s.Scan(
		&sub.ID,
		&sub.ParentID,
		&kindRaw,
		&sub.TypeLabel,
		&dateRaw,
		&sub.Hours,
		&crewRaw,
		&sub.LineID,
		&materialRaw,
		&familyRaw,
		&detailRaw,
		&createdRaw,
	); err != nil {
		return domain.ActivitySubmission{}, err
	}
	sub.Kind = domain.ActivityKind(kindRaw)
	sub.Material = domain.MaterialClass(materialRaw)
	sub.CreatedAt = parseTS(createdRaw)
	date, err := time.Parse(dateLayout, dateRaw)
	if err != nil {
		return domain.ActivitySubmission{}, fmt.Errorf("decode activity_submissions.work_date: %w", err)
	}
	sub.Date = date.UTC()
	if strings.TrimSpace(crewRaw) == "" {
		crewRaw = "{}"
	}
	if err := json.Unmarshal([]byte(crewRaw), &sub.Crew); err != nil {
		return domain.ActivitySubmission{}, fmt.Errorf("decode activity_submissions.crew_json: %w", err)
	}
	detail, err := domain.DecodeDetail(domain.ActivityFamily(familyRaw), []byte(detailRaw))
	if err != nil {
		return domain.ActivitySubmission{}, fmt.Errorf("decode activity_submissions.detail_json: %w", err)
	}
	sub.Detail = detail
	return sub, nil
}

// pageArgs renders a page as LIMIT/OFFSET arguments; a non-positive limit reads to the end.
func pageArgs(page app.Page) []any {
	limit := page.Limit
	if limit <= 0 {
		limit = -1
	}
	return []any{limit, max(page.Offset, 0)}
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// translateWriteErr maps constraint failures onto app errors.
func translateWriteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint failed"), strings.Contains(msg, "primary key must be unique"):
		return fmt.Errorf("%w: %v", app.ErrDuplicateKey, err)
	case strings.Contains(msg, "foreign key constraint failed"):
		return fmt.Errorf("%w: %v", app.ErrUnknownReference, err)
	default:
		return err
	}
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
