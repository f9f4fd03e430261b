package accounts

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Statistics is the admin console summary view.
type Statistics struct {
	TotalAccounts    int            `json:"total_accounts"`
	AccountsByStatus map[string]int `json:"accounts_by_status"`
	RecentSignups    int            `json:"recent_signups"`
	RecentLogins     int            `json:"recent_logins"`
	BlacklistEntries int            `json:"blacklist_entries"`
	PendingExpired   int            `json:"pending_expired"`
}

// StatisticsService aggregates account counters for the admin console.
type StatisticsService struct {
	db     *bun.DB
	window time.Duration
}

// NewStatisticsService builds the service; window bounds the "recent"
// counters (signups and logins).
func NewStatisticsService(db *bun.DB, window time.Duration) *StatisticsService {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &StatisticsService{db: db, window: window}
}

// Collect runs the aggregation queries.
func (s *StatisticsService) Collect(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		AccountsByStatus: map[string]int{},
	}

	total, err := s.db.NewSelect().Model((*Account)(nil)).
		Where("deleted_at IS NULL").
		Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalAccounts = total

	var byStatus []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err = s.db.NewSelect().Model((*Account)(nil)).
		ColumnExpr("status").
		ColumnExpr("count(*) AS count").
		Where("deleted_at IS NULL").
		Group("status").
		Scan(ctx, &byStatus)
	if err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		stats.AccountsByStatus[row.Status] = row.Count
	}

	since := time.Now().Add(-s.window)

	signups, err := s.db.NewSelect().Model((*Account)(nil)).
		Where("deleted_at IS NULL").
		Where("created_at >= ?", since).
		Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.RecentSignups = signups

	logins, err := s.db.NewSelect().Model((*Account)(nil)).
		Where("deleted_at IS NULL").
		Where("loggedin_at >= ?", since).
		Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.RecentLogins = logins

	blocked, err := s.db.NewSelect().Model((*BlacklistEntry)(nil)).
		Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.BlacklistEntries = blocked

	expired, err := s.db.NewSelect().Model((*Account)(nil)).
		Where("deleted_at IS NULL").
		Where("status = ?", AccountStatusPending).
		Where("pending_until < ?", time.Now()).
		Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.PendingExpired = expired

	return stats, nil
}
