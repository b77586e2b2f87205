package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/karteai/billing/internal/models"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/tool"
	"github.com/karteai/billing/pkg/types"
)

type StatisticType string

const (
	// Daily counts from the snapshot table
	StatisticTypeDailyStatusCount      StatisticType = "daily_status_count"
	StatisticTypeDailyCancelScheduled  StatisticType = "daily_cancel_scheduled_count"
	StatisticTypeDailyNewSubscriptions StatisticType = "daily_new_subscription_count"
	StatisticTypeDailyAccumulatedCount StatisticType = "daily_accumulated_count"

	// Point-in-time totals from the record table
	StatisticTypeTotalByStatus StatisticType = "total_by_status"
	StatisticTypeTotalEntitled StatisticType = "total_entitled_count"
)

// Filter fields supported by certain statistic types
var validFilters = map[string][]StatisticType{
	"status": {StatisticTypeDailyStatusCount, StatisticTypeTotalByStatus},
}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items"`
}

// GetFilters strips filters that do not apply to the given statistic type.
func (f *StatisticRequest) GetFilters(statisticType StatisticType) *StatisticRequest {
	if f == nil || len(f.Filters) == 0 {
		return f
	}
	var result StatisticRequest
	for _, filter := range f.Filters {
		if statisticTypes, ok := validFilters[filter.Field]; ok {
			if lo.Contains(statisticTypes, statisticType) {
				result.Filters = append(result.Filters, filter)
			}
		} else {
			result.Filters = append(result.Filters, filter)
		}
	}
	return &result
}

// Build composes a WHERE clause from the remaining filters.
func (f *StatisticRequest) Build(builder clause.Builder) {
	if len(f.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, filter := range f.Filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		filter.Build(builder)
	}
}

type StatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// Service answers the admin statistics queries and produces the daily
// snapshots they read from.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

const snapshotBatchSize = 500

// SaveDailySnapshots copies every subscription record's billing state into
// the snapshot table under the given date. Re-runs for the same date are
// no-ops thanks to the (row_key, snapshot_date) unique index.
func (s *Service) SaveDailySnapshots(ctx context.Context, snapshotDate time.Time) (int, error) {
	date := snapshotDate.Format(time.DateOnly)
	total := 0

	var records []*models.SubscriptionRecord
	err := s.db.WithContext(ctx).FindInBatches(&records, snapshotBatchSize, func(_ *gorm.DB, _ int) error {
		snaps := lo.Map(records, func(rec *models.SubscriptionRecord, _ int) *models.SubscriptionDailySnapshot {
			return &models.SubscriptionDailySnapshot{
				ID:                tool.GenerateUUIDV7(),
				RowKey:            rec.RowKey,
				Email:             rec.Email,
				Status:            rec.Status,
				CurrentPeriodEnd:  rec.CurrentPeriodEnd,
				CancelAtPeriodEnd: rec.CancelAtPeriodEnd,
				SnapshotDate:      date,
				SnapshotCreatedAt: time.Now(),
			}
		})
		if len(snaps) == 0 {
			return nil
		}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(snaps)
		if res.Error != nil {
			return res.Error
		}
		total += int(res.RowsAffected)
		return nil
	}).Error
	if err != nil {
		return total, fmt.Errorf("failed to save daily snapshots: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("daily snapshots saved", "date", date, "count", total)
	return total, nil
}

func (s *Service) getDailyStatusCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionDailySnapshot{}).TableName()).
		Select("snapshot_date as date, status as label, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyStatusCount)}}).
		Group("snapshot_date").
		Group("status").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyCancelScheduled(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionDailySnapshot{}).TableName()).
		Select("snapshot_date as date, count(*) as value").
		Where("cancel_at_period_end = true").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyCancelScheduled)}}).
		Group("snapshot_date").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSubscriptions(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionRecord{}).TableName()).
		Select("created_date as date, count(*) as value").
		Where("created_date != ''").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyNewSubscriptions)}}).
		Group("created_date").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyAccumulatedCount(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
WITH min_max_dates AS (
    SELECT MIN(created_date::date) as min_date, MAX(created_date::date) as max_date
    FROM subscription_record
    WHERE created_date != ''
),
distinct_dates AS (
    SELECT generate_series(min_date, max_date, '1 day'::interval) as date FROM min_max_dates
),
record_dates AS (
    SELECT row_key, created_date::date as date FROM subscription_record WHERE created_date != ''
)
SELECT TO_CHAR(d.date, 'YYYY-MM-DD') as date, COUNT(DISTINCT r.row_key) as value
FROM distinct_dates d
LEFT JOIN record_dates r ON r.date <= d.date
GROUP BY d.date
ORDER BY d.date DESC
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalByStatus(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionRecord{}).TableName()).
		Select("status as label, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeTotalByStatus)}}).
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getTotalEntitled counts records that currently grant access: live statuses
// plus canceled or past-due records still inside their paid period.
func (s *Service) getTotalEntitled(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	err := s.db.WithContext(ctx).Table((models.SubscriptionRecord{}).TableName()).
		Select("count(*) as value").
		Where("status IN ? OR (status IN ? AND current_period_end > ?)",
			[]types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing},
			[]types.SubscriptionStatus{types.SubscriptionStatusCanceled, types.SubscriptionStatusPastDue},
			time.Now()).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *StatisticRequest, dataItem *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyStatusCount:
		return s.getDailyStatusCount(ctx, request)
	case StatisticTypeDailyCancelScheduled:
		return s.getDailyCancelScheduled(ctx, request)
	case StatisticTypeDailyNewSubscriptions:
		return s.getDailyNewSubscriptions(ctx, request)
	case StatisticTypeDailyAccumulatedCount:
		return s.getDailyAccumulatedCount(ctx, request)
	case StatisticTypeTotalByStatus:
		return s.getTotalByStatus(ctx, request)
	case StatisticTypeTotalEntitled:
		return s.getTotalEntitled(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetStatistics runs the requested data items concurrently and collects them
// into one response.
func (s *Service) GetStatistics(ctx context.Context, request *StatisticRequest) (*StatisticResponse, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			for _, filter := range request.Filters {
				if statisticTypes, ok := validFilters[filter.Field]; ok && !lo.Contains(statisticTypes, di.ID) {
					resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: nil}
					return
				}
			}
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]StatisticResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &StatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
