// backend/src/services/summary_service.go
package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/centsible/backend/src/models"
)

const (
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type summaryService struct {
	db    *sql.DB
	cache *cache.Cache
}

// NewSummaryService serves the per-owner totals read model. Results are
// cached; every mutating handler invalidates the owner's entry.
func NewSummaryService(db *sql.DB, c *cache.Cache) SummaryService {
	return &summaryService{db: db, cache: c}
}

func summaryCacheKey(userID int64) string {
	return fmt.Sprintf("summary:%d", userID)
}

func (s *summaryService) GetSummary(userID int64) (*OwnerSummary, error) {
	if cached, found := s.cache.Get(summaryCacheKey(userID)); found {
		if summary, ok := cached.(*OwnerSummary); ok {
			return summary, nil
		}
	}

	summary := &OwnerSummary{TotalBalance: decimal.Zero}

	rows, err := s.db.Query(
		"SELECT id, user_id, name, currency, type, cached_balance, created_at FROM accounts WHERE user_id = ? AND deleted_at IS NULL ORDER BY name",
		userID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Currency, &a.Type, &a.CachedBalance, &a.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		summary.Accounts = append(summary.Accounts, a)
		summary.TotalBalance = summary.TotalBalance.Add(a.CachedBalance)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`
		SELECT id, user_id, name, limit_amount, frequency, interval, start_date, end_date, is_active, cached_consumption, created_at
		FROM budgets WHERE user_id = ? AND deleted_at IS NULL ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var b models.Budget
		var endDate sql.NullString
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.LimitAmount, &b.Frequency, &b.Interval,
			&b.StartDate, &endDate, &b.IsActive, &b.CachedConsumption, &b.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if endDate.Valid {
			b.EndDate = &endDate.String
		}
		summary.Budgets = append(summary.Budgets, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.cache.Set(summaryCacheKey(userID), summary, cache.DefaultExpiration)
	return summary, nil
}

func (s *summaryService) Invalidate(userID int64) {
	s.cache.Delete(summaryCacheKey(userID))
}
