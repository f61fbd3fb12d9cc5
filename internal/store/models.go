// Package store is the persistence layer: user and analysis records, the
// activity audit trail and the benchmark aggregation query, backed by
// either Postgres (lib/pq) or SQLite (mattn/go-sqlite3).
package store

import "time"

// User is a registered subject with a credit balance and tier. The credit
// column mirrors the governor's authoritative balance; PaymentCustomerID is
// the external processor's handle, empty until the subject first upgrades.
type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Tier              string    `json:"tier"`
	Credits           int       `json:"credits"`
	PaymentCustomerID string    `json:"payment_customer_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
}

// Analysis is the persisted form of one completed disclosure analysis.
type Analysis struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	CompanyName     string    `json:"company_name"`
	IndustrySector  string    `json:"industry_sector"`
	ReportingPeriod string    `json:"reporting_period"`
	Kind            string    `json:"kind"`
	URL             string    `json:"url"`
	Fingerprint     string    `json:"fingerprint"`
	OverallScore    float64   `json:"overall_score"`
	Environmental   float64   `json:"environmental_score"`
	Social          float64   `json:"social_score"`
	Governance      float64   `json:"governance_score"`
	Frameworks      []string  `json:"frameworks"`
	Confidence      float64   `json:"confidence"`
	Metrics         []byte    `json:"-"` // JSON-encoded []standardize.ExtractedMetric
	Coverage        []byte    `json:"-"` // JSON-encoded []compliance.FrameworkCoverage
	Gaps            []byte    `json:"-"` // JSON-encoded []compliance.Gap
	Findings        []byte    `json:"-"` // JSON-encoded []compliance.Finding
	Insights        []byte    `json:"-"` // JSON-encoded []string
	CreatedAt       time.Time `json:"created_at"`
}

// Activity is one audit-log event (credit debit, refund, rate-limit hit)
// keyed for the user_id+event+timestamp index.
type Activity struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BenchmarkPoint is one entry in a cross-company average for a sector.
type BenchmarkPoint struct {
	CompanyName  string    `json:"company_name"`
	OverallScore float64   `json:"overall_score"`
	CreatedAt    time.Time `json:"created_at"`
}
