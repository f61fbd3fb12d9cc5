package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hannah-ric/esg-scraper/internal/apperr"
)

// sqlBackend implements Database over database/sql with a dialect-specific
// placeholder function, shared by PostgresDB and SQLiteDB so the query text
// is written once.
type sqlBackend struct {
	db          *sql.DB
	placeholder func(n int) string
}

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }
func sqlitePlaceholder(n int) string   { return "?" }

func (b *sqlBackend) ph(n int) string { return b.placeholder(n) }

func (b *sqlBackend) Close() error { return b.db.Close() }

func (b *sqlBackend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }

func (b *sqlBackend) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.LastSeenAt.IsZero() {
		u.LastSeenAt = u.CreatedAt
	}
	q := fmt.Sprintf(`INSERT INTO users (id, email, tier, credits, payment_customer_id, created_at, last_seen_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		b.ph(1), b.ph(2), b.ph(3), b.ph(4), b.ph(5), b.ph(6), b.ph(7))
	err := retryTransient(ctx, func() error {
		_, err := b.db.ExecContext(ctx, q, u.ID, u.Email, u.Tier, u.Credits, u.PaymentCustomerID, u.CreatedAt, u.LastSeenAt)
		return err
	})
	if err != nil {
		return apperr.Dependency("insert user failed", err)
	}
	return nil
}

func (b *sqlBackend) GetUserByID(ctx context.Context, id string) (*User, error) {
	q := fmt.Sprintf(`SELECT id, email, tier, credits, payment_customer_id, created_at, last_seen_at FROM users WHERE id = %s`, b.ph(1))
	row := b.db.QueryRowContext(ctx, q, id)
	u := &User{}
	if err := row.Scan(&u.ID, &u.Email, &u.Tier, &u.Credits, &u.PaymentCustomerID, &u.CreatedAt, &u.LastSeenAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Dependency("query user failed", err)
	}
	return u, nil
}

// UpdateUserCredits applies delta atomically and refuses to let the balance
// go negative. Transient connection failures retry per persistenceBackoff;
// a rejected debit or a missing user returns immediately.
func (b *sqlBackend) UpdateUserCredits(ctx context.Context, userID string, delta int) (int, error) {
	var next int
	err := retryTransient(ctx, func() error {
		n, err := b.applyCreditDelta(ctx, userID, delta)
		next = n
		return err
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return 0, err
		}
		return 0, apperr.Dependency("update credits failed", err)
	}
	return next, nil
}

func (b *sqlBackend) applyCreditDelta(ctx context.Context, userID string, delta int) (int, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	q := fmt.Sprintf(`SELECT credits FROM users WHERE id = %s`, b.ph(1))
	var current int
	if err := tx.QueryRowContext(ctx, q, userID).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return 0, apperr.NotFound("user not found")
		}
		return 0, err
	}

	next := current + delta
	if next < 0 {
		return 0, apperr.InsufficientCredits("credit balance cannot go negative")
	}

	upd := fmt.Sprintf(`UPDATE users SET credits = %s, last_seen_at = %s WHERE id = %s`, b.ph(1), b.ph(2), b.ph(3))
	if _, err := tx.ExecContext(ctx, upd, next, time.Now().UTC(), userID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func (b *sqlBackend) InsertAnalysis(ctx context.Context, a *Analysis) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	frameworks, err := json.Marshal(a.Frameworks)
	if err != nil {
		return apperr.Internal("marshal frameworks failed", err)
	}
	q := fmt.Sprintf(`INSERT INTO analyses
		(id, user_id, company_name, industry_sector, reporting_period, kind, url, fingerprint, overall_score,
		 environmental_score, social_score, governance_score, frameworks, confidence, metrics, coverage, gaps,
		 findings, insights, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		b.ph(1), b.ph(2), b.ph(3), b.ph(4), b.ph(5), b.ph(6), b.ph(7), b.ph(8), b.ph(9), b.ph(10),
		b.ph(11), b.ph(12), b.ph(13), b.ph(14), b.ph(15), b.ph(16), b.ph(17), b.ph(18), b.ph(19), b.ph(20))
	err = retryTransient(ctx, func() error {
		_, err := b.db.ExecContext(ctx, q,
			a.ID, a.UserID, a.CompanyName, a.IndustrySector, a.ReportingPeriod, a.Kind, a.URL, a.Fingerprint, a.OverallScore,
			a.Environmental, a.Social, a.Governance, string(frameworks), a.Confidence, a.Metrics, a.Coverage, a.Gaps,
			a.Findings, a.Insights, a.CreatedAt)
		return err
	})
	if err != nil {
		return apperr.Dependency("insert analysis failed", err)
	}
	return nil
}

const analysisColumns = `id, user_id, company_name, industry_sector, reporting_period, kind, url, fingerprint, overall_score,
		environmental_score, social_score, governance_score, frameworks, confidence, metrics, coverage, gaps,
		findings, insights, created_at`

func (b *sqlBackend) scanAnalysis(row *sql.Row) (*Analysis, error) {
	a := &Analysis{}
	var frameworks string
	if err := row.Scan(&a.ID, &a.UserID, &a.CompanyName, &a.IndustrySector, &a.ReportingPeriod, &a.Kind, &a.URL, &a.Fingerprint,
		&a.OverallScore, &a.Environmental, &a.Social, &a.Governance, &frameworks, &a.Confidence,
		&a.Metrics, &a.Coverage, &a.Gaps, &a.Findings, &a.Insights, &a.CreatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(frameworks), &a.Frameworks)
	return a, nil
}

// GetAnalysisByID treats an owner mismatch identically to a missing row
// so the response never reveals that an analysis exists under a
// different owner.
func (b *sqlBackend) GetAnalysisByID(ctx context.Context, id, requestingUserID string) (*Analysis, error) {
	q := fmt.Sprintf(`SELECT %s FROM analyses WHERE id = %s`, analysisColumns, b.ph(1))
	row := b.db.QueryRowContext(ctx, q, id)
	a, err := b.scanAnalysis(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("analysis not found")
		}
		return nil, apperr.Dependency("query analysis failed", err)
	}
	if a.UserID != requestingUserID {
		return nil, apperr.NotFound("analysis not found")
	}
	return a, nil
}

func (b *sqlBackend) ListAnalysesByUser(ctx context.Context, userID string, limit, offset int) ([]*Analysis, error) {
	q := fmt.Sprintf(`SELECT %s FROM analyses WHERE user_id = %s ORDER BY created_at DESC LIMIT %s OFFSET %s`,
		analysisColumns, b.ph(1), b.ph(2), b.ph(3))
	return b.queryAnalyses(ctx, q, userID, limit, offset)
}

func (b *sqlBackend) ListByCompany(ctx context.Context, companyName string, limit, offset int) ([]*Analysis, error) {
	q := fmt.Sprintf(`SELECT %s FROM analyses WHERE company_name = %s ORDER BY created_at DESC LIMIT %s OFFSET %s`,
		analysisColumns, b.ph(1), b.ph(2), b.ph(3))
	return b.queryAnalyses(ctx, q, companyName, limit, offset)
}

// ListByCompanySince returns a company's analyses from the last `since`
// cutoff onward, oldest first.
func (b *sqlBackend) ListByCompanySince(ctx context.Context, companyName string, since time.Time) ([]*Analysis, error) {
	q := fmt.Sprintf(`SELECT %s FROM analyses WHERE company_name = %s AND created_at >= %s ORDER BY created_at ASC`,
		analysisColumns, b.ph(1), b.ph(2))
	return b.queryAnalyses(ctx, q, companyName, since)
}

func (b *sqlBackend) queryAnalyses(ctx context.Context, q string, args ...interface{}) ([]*Analysis, error) {
	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Dependency("list analyses failed", err)
	}
	defer rows.Close()

	var out []*Analysis
	for rows.Next() {
		a := &Analysis{}
		var frameworks string
		if err := rows.Scan(&a.ID, &a.UserID, &a.CompanyName, &a.IndustrySector, &a.ReportingPeriod, &a.Kind, &a.URL, &a.Fingerprint,
			&a.OverallScore, &a.Environmental, &a.Social, &a.Governance, &frameworks, &a.Confidence,
			&a.Metrics, &a.Coverage, &a.Gaps, &a.Findings, &a.Insights, &a.CreatedAt); err != nil {
			return nil, apperr.Dependency("scan analysis failed", err)
		}
		_ = json.Unmarshal([]byte(frameworks), &a.Frameworks)
		out = append(out, a)
	}
	return out, rows.Err()
}

// AggregateBenchmark ranks analyses by overall score, optionally scoped to
// an industry sector; an empty sector aggregates across all sectors,
// which is how the global benchmark baseline is computed.
func (b *sqlBackend) AggregateBenchmark(ctx context.Context, industrySector string, limit int) ([]BenchmarkPoint, error) {
	var (
		q    string
		rows *sql.Rows
		err  error
	)
	if industrySector == "" {
		q = fmt.Sprintf(`SELECT company_name, overall_score, created_at FROM analyses
			ORDER BY overall_score DESC LIMIT %s`, b.ph(1))
		rows, err = b.db.QueryContext(ctx, q, limit)
	} else {
		q = fmt.Sprintf(`SELECT company_name, overall_score, created_at FROM analyses
			WHERE industry_sector = %s ORDER BY overall_score DESC LIMIT %s`, b.ph(1), b.ph(2))
		rows, err = b.db.QueryContext(ctx, q, industrySector, limit)
	}
	if err != nil {
		return nil, apperr.Dependency("benchmark query failed", err)
	}
	defer rows.Close()

	var out []BenchmarkPoint
	for rows.Next() {
		var p BenchmarkPoint
		if err := rows.Scan(&p.CompanyName, &p.OverallScore, &p.CreatedAt); err != nil {
			return nil, apperr.Dependency("scan benchmark point failed", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (b *sqlBackend) RecordActivity(ctx context.Context, a *Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	q := fmt.Sprintf(`INSERT INTO activity (id, user_id, event, detail, created_at) VALUES (%s, %s, %s, %s, %s)`,
		b.ph(1), b.ph(2), b.ph(3), b.ph(4), b.ph(5))
	err := retryTransient(ctx, func() error {
		_, err := b.db.ExecContext(ctx, q, a.ID, a.UserID, a.Event, a.Detail, a.CreatedAt)
		return err
	})
	if err != nil {
		return apperr.Dependency("record activity failed", err)
	}
	return nil
}

func (b *sqlBackend) ListActivity(ctx context.Context, userID string, since time.Time, limit int) ([]*Activity, error) {
	q := fmt.Sprintf(`SELECT id, user_id, event, detail, created_at FROM activity
		WHERE user_id = %s AND created_at >= %s ORDER BY created_at DESC LIMIT %s`,
		b.ph(1), b.ph(2), b.ph(3))
	rows, err := b.db.QueryContext(ctx, q, userID, since, limit)
	if err != nil {
		return nil, apperr.Dependency("list activity failed", err)
	}
	defer rows.Close()

	var out []*Activity
	for rows.Next() {
		act := &Activity{}
		if err := rows.Scan(&act.ID, &act.UserID, &act.Event, &act.Detail, &act.CreatedAt); err != nil {
			return nil, apperr.Dependency("scan activity failed", err)
		}
		out = append(out, act)
	}
	return out, rows.Err()
}

// schema is applied once at startup by both backends; it uses portable SQL
// types that both postgres and sqlite accept.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	tier TEXT NOT NULL,
	credits INTEGER NOT NULL DEFAULT 0,
	payment_customer_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	last_seen_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	company_name TEXT NOT NULL,
	industry_sector TEXT NOT NULL,
	reporting_period TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT 'full',
	url TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	overall_score DOUBLE PRECISION NOT NULL,
	environmental_score DOUBLE PRECISION NOT NULL,
	social_score DOUBLE PRECISION NOT NULL,
	governance_score DOUBLE PRECISION NOT NULL,
	frameworks TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	metrics BYTEA,
	coverage BYTEA,
	gaps BYTEA,
	findings BYTEA,
	insights BYTEA,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_company_created ON analyses (company_name, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_industry_score ON analyses (industry_sector, overall_score DESC);

CREATE TABLE IF NOT EXISTS activity (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	event TEXT NOT NULL,
	detail TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_user_event_time ON activity (user_id, event, created_at);
`
