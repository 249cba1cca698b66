package service

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
	batchdomain "github.com/leadex/leadex/internal/batch/domain"
	"github.com/leadex/leadex/internal/clock"
	"github.com/leadex/leadex/internal/events"
	leaddomain "github.com/leadex/leadex/internal/lead/domain"
	"github.com/leadex/leadex/internal/metrics"
	"github.com/leadex/leadex/pkg/db"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// batchFormationLockKey serializes every batch-formation attempt system-wide.
// Batch runs are infrequent, so one global lock is cheaper than reasoning
// about overlapping harvests.
const batchFormationLockKey int64 = 7422430244979108873

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Hub     *events.Hub      `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	hub     *events.Hub
	metrics *metrics.Metrics

	// runMu is the in-process half of the global serialization; the advisory
	// lock covers other nodes sharing the database.
	runMu sync.Mutex
}

func NewService(p Params) batchdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("batch.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		hub:     p.Hub,
		metrics: p.Metrics,
	}
}

func (s *Service) Run(ctx context.Context, req batchdomain.RunRequest) (*batchdomain.RunResult, error) {
	if req.BatchSize < 0 {
		return nil, batchdomain.ErrInvalidBatchSize
	}
	if req.Trigger == "" {
		req.Trigger = batchdomain.TriggerManual
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	var result *batchdomain.RunResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := db.AdvisoryXactLock(ctx, tx, batchFormationLockKey); err != nil {
			return err
		}

		settings, err := s.settingsTx(ctx, tx, true)
		if err != nil {
			return err
		}

		batchSize := req.BatchSize
		if batchSize == 0 {
			batchSize = settings.Threshold
		}

		leads, err := s.harvestLeads(ctx, tx, batchSize)
		if err != nil {
			return err
		}

		if len(leads) == 0 {
			result = &batchdomain.RunResult{Outcome: batchdomain.OutcomeEmpty}
			return nil
		}
		required := settings.Threshold
		if batchSize < required {
			required = batchSize
		}
		if len(leads) < required && !req.AllowPartial {
			result = &batchdomain.RunResult{
				Outcome:  batchdomain.OutcomeNotEnough,
				Eligible: len(leads),
			}
			return nil
		}

		batch, auctionID, err := s.formBatchTx(ctx, tx, req, settings, leads)
		if err != nil {
			return err
		}
		result = &batchdomain.RunResult{
			Outcome:   batchdomain.OutcomeCreated,
			Batch:     batch,
			AuctionID: auctionID,
		}
		return nil
	})
	if err != nil {
		if db.IsSerializationErr(err) {
			// A concurrent harvest claimed the rows first; the caller can
			// retry once it finishes.
			s.metrics.IncBatchRun(string(batchdomain.OutcomeNotEnough))
			return &batchdomain.RunResult{Outcome: batchdomain.OutcomeNotEnough}, nil
		}
		return nil, err
	}

	s.metrics.IncBatchRun(string(result.Outcome))
	if result.Outcome == batchdomain.OutcomeCreated {
		s.publish(events.NewEvent(events.TypeBatchCreated, events.BatchTopic, map[string]any{
			"batch_id":    result.Batch.ID.String(),
			"auction_id":  result.AuctionID.String(),
			"total_leads": result.Batch.TotalLeads,
			"minimum_bid": result.Batch.MinimumBid.String(),
		}))
	}
	return result, nil
}

// harvestLeads claims up to limit low-value frozen leads, oldest first. The
// SKIP LOCKED read means two overlapping harvests can never claim the same
// lead even without the advisory lock.
func (s *Service) harvestLeads(ctx context.Context, tx *gorm.DB, limit int) ([]leaddomain.Lead, error) {
	var leads []leaddomain.Lead
	query := `SELECT id, title, temperature, status, owner_id, batch_id, created_at, updated_at
		 FROM leads
		 WHERE status = ? AND batch_id IS NULL
		 ORDER BY created_at, id
		 LIMIT ?` + db.SkipLockedClause(tx)
	err := tx.WithContext(ctx).Raw(query, leaddomain.StatusLowFrozen, limit).Scan(&leads).Error
	if err != nil {
		return nil, err
	}
	return leads, nil
}

func (s *Service) formBatchTx(
	ctx context.Context,
	tx *gorm.DB,
	req batchdomain.RunRequest,
	settings *batchdomain.BatchSettings,
	leads []leaddomain.Lead,
) (*batchdomain.BatchAuction, snowflake.ID, error) {
	now := s.clock.Now()
	minimumBid := settings.UnitPrice.Mul(decimal.NewFromInt(int64(len(leads))))

	batch := &batchdomain.BatchAuction{
		ID:            s.genID.Generate(),
		TotalLeads:    len(leads),
		UnitPrice:     settings.UnitPrice,
		MinimumBid:    minimumBid,
		Status:        batchdomain.BatchStatusRunning,
		TriggerReason: req.Trigger,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.ActorID != 0 {
		actorID := req.ActorID
		batch.CreatedByID = &actorID
	}

	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO batch_auctions (id, total_leads, unit_price, minimum_bid, status, trigger_reason, created_by_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID,
		batch.TotalLeads,
		batch.UnitPrice,
		batch.MinimumBid,
		batch.Status,
		batch.TriggerReason,
		batch.CreatedByID,
		now,
		now,
	).Error; err != nil {
		return nil, 0, err
	}

	for _, lead := range leads {
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO batch_auction_leads (id, batch_id, lead_id, prior_status, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			batch.ID,
			lead.ID,
			string(lead.Status),
			now,
		).Error; err != nil {
			return nil, 0, err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE leads SET status = ?, batch_id = ?, updated_at = ? WHERE id = ?`,
			leaddomain.StatusBatched,
			batch.ID,
			now,
			lead.ID,
		).Error; err != nil {
			return nil, 0, err
		}
	}

	auctionID := s.genID.Generate()
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO auctions (id, lead_id, batch_id, type, status, minimum_bid, winning_bid_id, expires_at, created_at, updated_at)
		 VALUES (?, NULL, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		auctionID,
		batch.ID,
		auctiondomain.TypeBatch,
		auctiondomain.StatusOpen,
		batch.MinimumBid,
		now.Add(batchdomain.DefaultBatchExpiry),
		now,
		now,
	).Error; err != nil {
		return nil, 0, err
	}

	return batch, auctionID, nil
}

func (s *Service) GetSettings(ctx context.Context) (*batchdomain.BatchSettings, error) {
	var settings *batchdomain.BatchSettings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		settings, err = s.settingsTx(ctx, tx, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, req batchdomain.UpdateSettingsRequest) (*batchdomain.BatchSettings, error) {
	if req.Threshold != nil && *req.Threshold < 1 {
		return nil, batchdomain.ErrInvalidThreshold
	}
	if req.UnitPrice != nil && req.UnitPrice.Sign() <= 0 {
		return nil, batchdomain.ErrInvalidUnitPrice
	}

	var settings *batchdomain.BatchSettings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		settings, err = s.settingsTx(ctx, tx, true)
		if err != nil {
			return err
		}

		if req.Threshold != nil {
			settings.Threshold = *req.Threshold
		}
		if req.UnitPrice != nil {
			settings.UnitPrice = *req.UnitPrice
		}
		if req.AutoTrigger != nil {
			settings.AutoTrigger = *req.AutoTrigger
		}
		settings.UpdatedAt = s.clock.Now()

		return tx.WithContext(ctx).Exec(
			`UPDATE batch_settings SET threshold = ?, unit_price = ?, auto_trigger = ?, updated_at = ? WHERE id = ?`,
			settings.Threshold,
			settings.UnitPrice,
			settings.AutoTrigger,
			settings.UpdatedAt,
			settings.ID,
		).Error
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// settingsTx loads the single settings row, creating defaults on first use.
func (s *Service) settingsTx(ctx context.Context, tx *gorm.DB, forUpdate bool) (*batchdomain.BatchSettings, error) {
	query := `SELECT id, threshold, unit_price, auto_trigger, updated_at FROM batch_settings WHERE id = 1`
	if forUpdate {
		query += db.RowLockClause(tx)
	}

	var settings batchdomain.BatchSettings
	if err := tx.WithContext(ctx).Raw(query).Scan(&settings).Error; err != nil {
		return nil, err
	}
	if settings.ID != 0 {
		return &settings, nil
	}

	settings = batchdomain.BatchSettings{
		ID:          1,
		Threshold:   batchdomain.DefaultThreshold,
		UnitPrice:   batchdomain.DefaultUnitPrice,
		AutoTrigger: false,
		UpdatedAt:   s.clock.Now(),
	}
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO batch_settings (id, threshold, unit_price, auto_trigger, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		settings.ID,
		settings.Threshold,
		settings.UnitPrice,
		settings.AutoTrigger,
		settings.UpdatedAt,
	).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.settingsTx(ctx, tx, forUpdate)
		}
		return nil, err
	}
	return &settings, nil
}

func (s *Service) publish(event events.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(event)
}
