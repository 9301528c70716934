package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cohort-run/cohort/internal/identity"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    state INTEGER NOT NULL DEFAULT 0,
    start_date TEXT,
    end_date TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_state ON experiments(state);

CREATE TABLE IF NOT EXISTS anonymous_visitors (
    id TEXT PRIMARY KEY,
    confirmed_human INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS participants (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id INTEGER NOT NULL REFERENCES experiments(id),
    user_id TEXT,
    anonymous_id TEXT REFERENCES anonymous_visitors(id),
    grp INTEGER NOT NULL,
    enrollment_date TEXT NOT NULL,
    CHECK ((user_id IS NULL) != (anonymous_id IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_user
    ON participants(experiment_id, user_id) WHERE user_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_anon
    ON participants(experiment_id, anonymous_id) WHERE anonymous_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_participants_enrollment
    ON participants(experiment_id, enrollment_date);

CREATE TABLE IF NOT EXISTS goal_types (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS goal_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id INTEGER NOT NULL REFERENCES experiments(id),
    goal_type_id INTEGER NOT NULL REFERENCES goal_types(id),
    user_id TEXT,
    anonymous_id TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    created_date TEXT NOT NULL,
    CHECK ((user_id IS NULL) != (anonymous_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_goal_records_exp_date
    ON goal_records(experiment_id, created_date);

CREATE TABLE IF NOT EXISTS daily_engagement_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id INTEGER NOT NULL REFERENCES experiments(id),
    date TEXT NOT NULL,
    control_group_size INTEGER NOT NULL,
    test_group_size INTEGER NOT NULL,
    control_score REAL,
    test_score REAL,
    confidence REAL,
    UNIQUE (experiment_id, date)
);

CREATE TABLE IF NOT EXISTS activity_scores (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT,
    anonymous_id TEXT,
    date TEXT NOT NULL,
    score REAL NOT NULL,
    CHECK ((user_id IS NULL) != (anonymous_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_activity_scores_date ON activity_scores(date);
`

func Open(dbPath string) (*SQLiteStore, error) {
	// WAL for concurrent readers; the busy timeout applies per connection,
	// so it rides the DSN and covers every pooled connection. Concurrent
	// first visits hammer the participants table and must wait out writer
	// contention instead of surfacing SQLITE_BUSY.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const dateLayout = "2006-01-02"

func dateStr(t time.Time) string {
	return DateOf(t).Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// visitorCols splits an identity into its nullable column pair.
func visitorCols(v identity.Identity) (userID, anonID sql.NullString) {
	if id, ok := v.UserID(); ok {
		userID = sql.NullString{String: id, Valid: true}
	}
	if id, ok := v.AnonymousID(); ok {
		anonID = sql.NullString{String: id, Valid: true}
	}
	return userID, anonID
}

func visitorOf(userID, anonID sql.NullString) identity.Identity {
	if userID.Valid {
		return identity.Authenticated(userID.String)
	}
	return identity.Anonymous(anonID.String)
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, name string) (*Experiment, error) {
	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (name, state, created_at) VALUES (?, ?, ?)`,
		name, int(StateDisabled), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return &Experiment{
		ID:        id,
		Name:      name,
		State:     StateDisabled,
		CreatedAt: time.Unix(now, 0),
	}, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, name string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, state, start_date, end_date, created_at
		 FROM experiments WHERE name = ?`, name)
	return scanExperiment(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var state int
	var startDate, endDate sql.NullString
	var createdAt int64

	err := row.Scan(&exp.ID, &exp.Name, &state, &startDate, &endDate, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}

	exp.State = ExperimentState(state)
	exp.CreatedAt = time.Unix(createdAt, 0)
	if startDate.Valid {
		d, err := parseDate(startDate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse start date: %w", err)
		}
		exp.StartDate = &d
	}
	if endDate.Valid {
		d, err := parseDate(endDate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end date: %w", err)
		}
		exp.EndDate = &d
	}
	return &exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, state, start_date, end_date, created_at
		 FROM experiments ORDER BY start_date DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	return experiments, rows.Err()
}

// SetExperimentState transitions the lifecycle state. Entering the enabled
// state stamps start_date (once); leaving it stamps end_date.
func (s *SQLiteStore) SetExperimentState(ctx context.Context, name string, state ExperimentState) (*Experiment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanExperiment(tx.QueryRowContext(ctx,
		`SELECT id, name, state, start_date, end_date, created_at
		 FROM experiments WHERE name = ?`, name))
	if err != nil {
		return nil, err
	}

	today := dateStr(time.Now())
	startDate := current.StartDate
	endDate := current.EndDate
	if state == StateEnabled && current.State != StateEnabled && startDate == nil {
		d, _ := parseDate(today)
		startDate = &d
	}
	if state != StateEnabled && current.State == StateEnabled {
		d, _ := parseDate(today)
		endDate = &d
	}

	var startCol, endCol sql.NullString
	if startDate != nil {
		startCol = sql.NullString{String: dateStr(*startDate), Valid: true}
	}
	if endDate != nil {
		endCol = sql.NullString{String: dateStr(*endDate), Valid: true}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE experiments SET state = ?, start_date = ?, end_date = ? WHERE name = ?`,
		int(state), startCol, endCol, name,
	); err != nil {
		return nil, fmt.Errorf("failed to update experiment state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit state change: %w", err)
	}

	current.State = state
	current.StartDate = startDate
	current.EndDate = endDate
	return current, nil
}

func (s *SQLiteStore) EnsureAnonymousVisitor(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO anonymous_visitors (id, created_at) VALUES (?, ?)`,
		id, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure anonymous visitor: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAnonymousVisitor(ctx context.Context, id string) (*AnonymousVisitor, error) {
	var visitor AnonymousVisitor
	var confirmed int
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, confirmed_human, created_at FROM anonymous_visitors WHERE id = ?`, id,
	).Scan(&visitor.ID, &confirmed, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anonymous visitor: %w", err)
	}

	visitor.ConfirmedHuman = confirmed != 0
	visitor.CreatedAt = time.Unix(createdAt, 0)
	return &visitor, nil
}

func (s *SQLiteStore) ConfirmHuman(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE anonymous_visitors SET confirmed_human = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to confirm human: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetParticipant(ctx context.Context, experimentID int64, visitor identity.Identity) (*Participant, error) {
	userID, anonID := visitorCols(visitor)

	var p Participant
	var rowUser, rowAnon sql.NullString
	var grp int
	var enrollment string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, experiment_id, user_id, anonymous_id, grp, enrollment_date
		 FROM participants
		 WHERE experiment_id = ?
		   AND ((? IS NOT NULL AND user_id = ?) OR (? IS NOT NULL AND anonymous_id = ?))`,
		experimentID, userID, userID, anonID, anonID,
	).Scan(&p.ID, &p.ExperimentID, &rowUser, &rowAnon, &grp, &enrollment)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	p.Visitor = visitorOf(rowUser, rowAnon)
	p.Group = Group(grp)
	p.EnrollmentDate, err = parseDate(enrollment)
	if err != nil {
		return nil, fmt.Errorf("failed to parse enrollment date: %w", err)
	}
	return &p, nil
}

// CreateParticipant inserts the binding if absent. The partial unique
// indexes make the insert a no-op when a concurrent request won the race;
// the re-read then returns the winning row, so callers always observe
// exactly one durable group per visitor per experiment.
func (s *SQLiteStore) CreateParticipant(ctx context.Context, experimentID int64, visitor identity.Identity, group Group, enrollment time.Time) (*Participant, bool, error) {
	userID, anonID := visitorCols(visitor)

	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO participants (experiment_id, user_id, anonymous_id, grp, enrollment_date)
		 VALUES (?, ?, ?, ?, ?)`,
		experimentID, userID, anonID, int(group), dateStr(enrollment),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert participant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	participant, err := s.GetParticipant(ctx, experimentID, visitor)
	if err != nil {
		return nil, false, err
	}
	return participant, rowsAffected > 0, nil
}

// ActiveEnrollments returns the visitor's participants in experiments that
// are currently enabled.
func (s *SQLiteStore) ActiveEnrollments(ctx context.Context, visitor identity.Identity) ([]*Participant, error) {
	userID, anonID := visitorCols(visitor)

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.experiment_id, p.user_id, p.anonymous_id, p.grp, p.enrollment_date
		 FROM participants p
		 JOIN experiments e ON e.id = p.experiment_id
		 WHERE e.state = ?
		   AND ((? IS NOT NULL AND p.user_id = ?) OR (? IS NOT NULL AND p.anonymous_id = ?))`,
		int(StateEnabled), userID, userID, anonID, anonID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		var p Participant
		var rowUser, rowAnon sql.NullString
		var grp int
		var enrollment string

		if err := rows.Scan(&p.ID, &p.ExperimentID, &rowUser, &rowAnon, &grp, &enrollment); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Visitor = visitorOf(rowUser, rowAnon)
		p.Group = Group(grp)
		p.EnrollmentDate, err = parseDate(enrollment)
		if err != nil {
			return nil, fmt.Errorf("failed to parse enrollment date: %w", err)
		}
		participants = append(participants, &p)
	}
	return participants, rows.Err()
}

func (s *SQLiteStore) CreateGoalType(ctx context.Context, name string) (*GoalType, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO goal_types (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to insert goal type: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return &GoalType{ID: id, Name: name}, nil
}

func (s *SQLiteStore) GetGoalType(ctx context.Context, name string) (*GoalType, error) {
	var gt GoalType
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM goal_types WHERE name = ?`, name,
	).Scan(&gt.ID, &gt.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal type: %w", err)
	}
	return &gt, nil
}

func (s *SQLiteStore) ListGoalTypes(ctx context.Context) ([]*GoalType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM goal_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list goal types: %w", err)
	}
	defer rows.Close()

	var types []*GoalType
	for rows.Next() {
		var gt GoalType
		if err := rows.Scan(&gt.ID, &gt.Name); err != nil {
			return nil, fmt.Errorf("failed to scan goal type: %w", err)
		}
		types = append(types, &gt)
	}
	return types, rows.Err()
}

func (s *SQLiteStore) InsertGoalRecord(ctx context.Context, experimentID, goalTypeID int64, visitor identity.Identity, at time.Time) error {
	userID, anonID := visitorCols(visitor)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goal_records (experiment_id, goal_type_id, user_id, anonymous_id, created_at, created_date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		experimentID, goalTypeID, userID, anonID, at.Unix(), dateStr(at),
	)
	if err != nil {
		return fmt.Errorf("failed to insert goal record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GoalRecords(ctx context.Context, experimentID int64) ([]*GoalRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.experiment_id, g.goal_type_id, t.name, g.user_id, g.anonymous_id, g.created_at
		 FROM goal_records g
		 JOIN goal_types t ON t.id = g.goal_type_id
		 WHERE g.experiment_id = ?
		 ORDER BY g.created_at DESC`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get goal records: %w", err)
	}
	defer rows.Close()

	var records []*GoalRecord
	for rows.Next() {
		var r GoalRecord
		var rowUser, rowAnon sql.NullString
		var createdAt int64

		if err := rows.Scan(&r.ID, &r.ExperimentID, &r.GoalTypeID, &r.GoalType, &rowUser, &rowAnon, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal record: %w", err)
		}
		r.Visitor = visitorOf(rowUser, rowAnon)
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// GroupSizes counts participants enrolled on or before the date. The
// cohort is cumulative, so sizes never decrease as the date advances.
func (s *SQLiteStore) GroupSizes(ctx context.Context, experimentID int64, date time.Time) (GroupSizes, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT grp, COUNT(*) FROM participants
		 WHERE experiment_id = ? AND enrollment_date <= ?
		 GROUP BY grp`,
		experimentID, dateStr(date),
	)
	if err != nil {
		return GroupSizes{}, fmt.Errorf("failed to get group sizes: %w", err)
	}
	defer rows.Close()

	var sizes GroupSizes
	for rows.Next() {
		var grp, count int
		if err := rows.Scan(&grp, &count); err != nil {
			return GroupSizes{}, fmt.Errorf("failed to scan group size: %w", err)
		}
		if Group(grp) == GroupTest {
			sizes.Test = count
		} else {
			sizes.Control = count
		}
	}
	return sizes, rows.Err()
}

// ConversionCounts returns cumulative-to-date goal record counts per goal
// type per group, restricted to records whose participant had enrolled by
// the date. Repeat conversions count individually.
func (s *SQLiteStore) ConversionCounts(ctx context.Context, experimentID int64, date time.Time) ([]ConversionCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name, p.grp, COUNT(*)
		 FROM goal_records g
		 JOIN goal_types t ON t.id = g.goal_type_id
		 JOIN participants p ON p.experiment_id = g.experiment_id
		   AND ((g.user_id IS NOT NULL AND p.user_id = g.user_id)
		     OR (g.anonymous_id IS NOT NULL AND p.anonymous_id = g.anonymous_id))
		 WHERE g.experiment_id = ? AND g.created_date <= ? AND p.enrollment_date <= ?
		 GROUP BY t.name, p.grp
		 ORDER BY t.name, p.grp`,
		experimentID, dateStr(date), dateStr(date),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion counts: %w", err)
	}
	defer rows.Close()

	var counts []ConversionCount
	for rows.Next() {
		var c ConversionCount
		var grp int
		if err := rows.Scan(&c.GoalType, &grp, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan conversion count: %w", err)
		}
		c.Group = Group(grp)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) CohortMembers(ctx context.Context, experimentID int64, date time.Time) ([]CohortMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, anonymous_id, grp FROM participants
		 WHERE experiment_id = ? AND enrollment_date <= ?`,
		experimentID, dateStr(date),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get cohort members: %w", err)
	}
	defer rows.Close()

	var members []CohortMember
	for rows.Next() {
		var rowUser, rowAnon sql.NullString
		var grp int
		if err := rows.Scan(&rowUser, &rowAnon, &grp); err != nil {
			return nil, fmt.Errorf("failed to scan cohort member: %w", err)
		}
		members = append(members, CohortMember{
			Visitor: visitorOf(rowUser, rowAnon),
			Group:   Group(grp),
		})
	}
	return members, rows.Err()
}

// UpsertDailyEngagementReport overwrites the (experiment, date) row so the
// daily batch can be re-run idempotently.
func (s *SQLiteStore) UpsertDailyEngagementReport(ctx context.Context, report *DailyEngagementReport) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_engagement_reports
		     (experiment_id, date, control_group_size, test_group_size, control_score, test_score, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (experiment_id, date) DO UPDATE SET
		     control_group_size = excluded.control_group_size,
		     test_group_size = excluded.test_group_size,
		     control_score = excluded.control_score,
		     test_score = excluded.test_score,
		     confidence = excluded.confidence`,
		report.ExperimentID, dateStr(report.Date),
		report.ControlGroupSize, report.TestGroupSize,
		nullableFloat(report.ControlScore), nullableFloat(report.TestScore),
		nullableFloat(report.Confidence),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert engagement report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDailyEngagementReport(ctx context.Context, experimentID int64, date time.Time) (*DailyEngagementReport, error) {
	var report DailyEngagementReport
	var day string
	var controlScore, testScore, confidence sql.NullFloat64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, experiment_id, date, control_group_size, test_group_size, control_score, test_score, confidence
		 FROM daily_engagement_reports WHERE experiment_id = ? AND date = ?`,
		experimentID, dateStr(date),
	).Scan(&report.ID, &report.ExperimentID, &day, &report.ControlGroupSize, &report.TestGroupSize,
		&controlScore, &testScore, &confidence)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get engagement report: %w", err)
	}

	report.Date, err = parseDate(day)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report date: %w", err)
	}
	report.ControlScore = floatPtr(controlScore)
	report.TestScore = floatPtr(testScore)
	report.Confidence = floatPtr(confidence)
	return &report, nil
}

// InsertActivityScore records an externally supplied engagement score for
// one visitor on one date.
func (s *SQLiteStore) InsertActivityScore(ctx context.Context, visitor identity.Identity, date time.Time, score float64) error {
	userID, anonID := visitorCols(visitor)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_scores (user_id, anonymous_id, date, score) VALUES (?, ?, ?, ?)`,
		userID, anonID, dateStr(date), score,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity score: %w", err)
	}
	return nil
}

// VisitorScores sums activity scores per visitor for one date, keyed by
// identity ref.
func (s *SQLiteStore) VisitorScores(ctx context.Context, date time.Time) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, anonymous_id, SUM(score) FROM activity_scores
		 WHERE date = ?
		 GROUP BY user_id, anonymous_id`,
		dateStr(date),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get visitor scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var rowUser, rowAnon sql.NullString
		var score float64
		if err := rows.Scan(&rowUser, &rowAnon, &score); err != nil {
			return nil, fmt.Errorf("failed to scan visitor score: %w", err)
		}
		scores[visitorOf(rowUser, rowAnon).Ref()] = score
	}
	return scores, rows.Err()
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
