package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
	"github.com/leadex/leadex/internal/clock"
	"github.com/leadex/leadex/internal/config"
	"github.com/leadex/leadex/internal/events"
	leaddomain "github.com/leadex/leadex/internal/lead/domain"
	ledgerdomain "github.com/leadex/leadex/internal/ledger/domain"
	"github.com/leadex/leadex/internal/metrics"
	"github.com/leadex/leadex/pkg/db"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Cfg     config.Config
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Ledger  ledgerdomain.Service
	Hub     *events.Hub      `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	ledger      ledgerdomain.Service
	hub         *events.Hub
	metrics     *metrics.Metrics
	lockTimeout time.Duration
	locks       *keyedMutex
}

func NewService(p Params) auctiondomain.Service {
	lockTimeout := p.Cfg.BidLockTimeout
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("auction.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		ledger:      p.Ledger,
		hub:         p.Hub,
		metrics:     p.Metrics,
		lockTimeout: lockTimeout,
		locks:       newKeyedMutex(),
	}
}

func (s *Service) CreateForLead(ctx context.Context, leadID snowflake.ID, minimum decimal.Decimal, ttl time.Duration) (*auctiondomain.Auction, error) {
	if minimum.Sign() <= 0 {
		return nil, auctiondomain.ErrInvalidAmount
	}
	if ttl <= 0 {
		return nil, auctiondomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	auction := &auctiondomain.Auction{
		ID:         s.genID.Generate(),
		LeadID:     &leadID,
		Type:       auctiondomain.TypeSingle,
		Status:     auctiondomain.StatusOpen,
		MinimumBid: minimum,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lead, err := s.loadLead(ctx, tx, leadID)
		if err != nil {
			return err
		}
		if lead == nil {
			return auctiondomain.ErrLeadNotFound
		}
		if lead.Status != leaddomain.StatusAvailable {
			return auctiondomain.ErrLeadNotAvailable
		}

		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO auctions (id, lead_id, batch_id, type, status, minimum_bid, winning_bid_id, expires_at, created_at, updated_at)
			 VALUES (?, ?, NULL, ?, ?, ?, NULL, ?, ?, ?)`,
			auction.ID,
			leadID,
			auction.Type,
			auction.Status,
			auction.MinimumBid,
			auction.ExpiresAt,
			now,
			now,
		).Error; err != nil {
			return err
		}

		return tx.WithContext(ctx).Exec(
			`UPDATE leads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			leaddomain.StatusAuctioned,
			now,
			leadID,
			leaddomain.StatusAvailable,
		).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.NewEvent(events.TypeAuctionCreated, events.AuctionTopic(auction.ID.String()), map[string]any{
		"auction_id":  auction.ID.String(),
		"lead_id":     leadID.String(),
		"minimum_bid": auction.MinimumBid.String(),
		"expires_at":  auction.ExpiresAt,
	}))
	return auction, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*auctiondomain.Auction, []auctiondomain.Bid, error) {
	var auction *auctiondomain.Auction
	var bids []auctiondomain.Bid
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		auction, err = s.loadAuction(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if auction == nil {
			return auctiondomain.ErrAuctionNotFound
		}
		bids, err = s.loadBids(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return auction, bids, nil
}

func (s *Service) PlaceBid(ctx context.Context, req auctiondomain.PlaceBidRequest) (*auctiondomain.PlaceBidResult, error) {
	if req.AuctionID == 0 {
		return nil, auctiondomain.ErrAuctionNotFound
	}
	if !req.BuyNow && req.Amount.Sign() <= 0 {
		s.metrics.IncBidRejected("invalid_amount")
		return nil, auctiondomain.ErrInvalidAmount
	}

	// Per-auction exclusive section: all bids on one auction are totally
	// ordered, which makes the read-validate-write sequence below safe.
	lockStart := time.Now()
	release, err := s.locks.Acquire(ctx, req.AuctionID, s.lockTimeout)
	s.metrics.ObserveLockWait(time.Since(lockStart))
	if err != nil {
		s.metrics.IncBidRejected("lock_timeout")
		return nil, err
	}
	defer release()

	var (
		result    auctiondomain.PlaceBidResult
		published []events.Event
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		published = published[:0]
		now := s.clock.Now()

		if err := s.recordRequestKey(ctx, tx, req); err != nil {
			return err
		}

		auction, err := s.loadAuction(ctx, tx, req.AuctionID, true)
		if err != nil {
			return err
		}
		if auction == nil {
			return auctiondomain.ErrAuctionNotFound
		}
		if !auction.IsOpen(now) {
			return auctiondomain.ErrAuctionClosed
		}

		temperature, err := s.auctionTemperature(ctx, tx, auction)
		if err != nil {
			return err
		}

		bids, err := s.loadBids(ctx, tx, auction.ID)
		if err != nil {
			return err
		}
		top := auctiondomain.TopBid(bids)

		required := auctiondomain.RequiredMinimum(auction.MinimumBid, top)
		effective := req.Amount
		if req.BuyNow {
			effective = auctiondomain.BuyNowPrice(required, temperature)
		} else if req.Amount.Cmp(required) < 0 {
			return &auctiondomain.BidTooLowError{Minimum: required}
		}

		bid := &auctiondomain.Bid{
			ID:        s.genID.Generate(),
			AuctionID: auction.ID,
			UserID:    req.UserID,
			Amount:    effective,
			CreatedAt: now,
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO bids (id, auction_id, user_id, amount, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			bid.ID,
			bid.AuctionID,
			bid.UserID,
			bid.Amount,
			bid.CreatedAt,
		).Error; err != nil {
			return err
		}

		if _, err := s.ledger.Reserve(ctx, tx, req.UserID, auction.ID, bid.ID, effective); err != nil {
			return err
		}

		// The moment a leader is outbid their credits are free again; they do
		// not wait for settlement.
		if top != nil && top.UserID != req.UserID {
			prevHold, err := s.ledger.ActiveHold(ctx, tx, top.UserID, auction.ID)
			if err != nil {
				return err
			}
			if prevHold != nil {
				if err := s.ledger.Release(ctx, tx, prevHold.ID); err != nil {
					return err
				}
			}
		}

		result = auctiondomain.PlaceBidResult{Bid: bid}

		if req.BuyNow {
			settlement, evts, err := s.settleTx(ctx, tx, auction, bid, now)
			if err != nil {
				return err
			}
			if settlement.Outcome != auctiondomain.OutcomeWon {
				return auctiondomain.ErrAuctionClosed
			}
			result.Settlement = settlement
			published = append(published, evts...)
		} else {
			newMinimum := auctiondomain.NextMinimum(effective)
			expiresAt := auction.ExpiresAt
			if auction.ExpiresAt.Sub(now) < auctiondomain.AntiSnipeWindow {
				expiresAt = now.Add(auctiondomain.AntiSnipeWindow)
			}
			if err := tx.WithContext(ctx).Exec(
				`UPDATE auctions SET minimum_bid = ?, expires_at = ?, updated_at = ? WHERE id = ?`,
				newMinimum,
				expiresAt,
				now,
				auction.ID,
			).Error; err != nil {
				return err
			}
			result.ExpiresAt = &expiresAt
		}

		summary, err := s.ledger.AvailableCredit(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		result.AvailableCredit = summary.Available

		published = append(published, events.NewEvent(events.TypeBidPlaced, events.AuctionTopic(auction.ID.String()), map[string]any{
			"auction_id": auction.ID.String(),
			"bid_id":     bid.ID.String(),
			"user_id":    bid.UserID.String(),
			"amount":     bid.Amount.String(),
			"buy_now":    req.BuyNow,
		}))
		return nil
	})
	if err != nil {
		s.countRejection(err)
		return nil, err
	}

	s.metrics.IncBidAccepted()
	if result.Settlement != nil {
		s.metrics.IncSettlement(string(result.Settlement.Outcome))
	}
	for _, event := range published {
		s.publish(event)
	}
	return &result, nil
}

func (s *Service) Close(ctx context.Context, auctionID snowflake.ID) (*auctiondomain.SettlementResult, error) {
	var (
		settlement *auctiondomain.SettlementResult
		published  []events.Event
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		published = published[:0]
		now := s.clock.Now()

		auction, err := s.loadAuction(ctx, tx, auctionID, true)
		if err != nil {
			return err
		}
		if auction == nil {
			return auctiondomain.ErrAuctionNotFound
		}

		bids, err := s.loadBids(ctx, tx, auctionID)
		if err != nil {
			return err
		}
		winner := auctiondomain.TopBid(bids)

		settlement, published, err = s.settleTx(ctx, tx, auction, winner, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if settlement.Outcome != auctiondomain.OutcomeAlreadyClosed {
		s.metrics.IncSettlement(string(settlement.Outcome))
	}
	for _, event := range published {
		s.publish(event)
	}
	return settlement, nil
}

func (s *Service) recordRequestKey(ctx context.Context, tx *gorm.DB, req auctiondomain.PlaceBidRequest) error {
	if req.IdempotencyKey == "" {
		return nil
	}
	// The driver renders the conflict clause for its dialect.
	result := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_key"}},
		DoNothing: true,
	}).Create(&auctiondomain.BidRequest{
		ID:        s.genID.Generate(),
		Key:       req.IdempotencyKey,
		AuctionID: req.AuctionID,
		UserID:    req.UserID,
		CreatedAt: s.clock.Now(),
	})
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return auctiondomain.ErrDuplicateRequest
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return auctiondomain.ErrDuplicateRequest
	}
	return nil
}

func (s *Service) countRejection(err error) {
	switch {
	case auctiondomain.AsBidTooLow(err) != nil:
		s.metrics.IncBidRejected("bid_too_low")
	case ledgerdomain.AsInsufficientCredits(err) != nil:
		s.metrics.IncBidRejected("insufficient_credits")
	case err == auctiondomain.ErrAuctionClosed:
		s.metrics.IncBidRejected("auction_closed")
	case err == auctiondomain.ErrDuplicateRequest:
		s.metrics.IncBidRejected("duplicate_request")
	}
}

func (s *Service) publish(event events.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(event)
}

func (s *Service) loadAuction(ctx context.Context, tx *gorm.DB, id snowflake.ID, forUpdate bool) (*auctiondomain.Auction, error) {
	query := `SELECT id, lead_id, batch_id, type, status, minimum_bid, winning_bid_id, expires_at, created_at, updated_at
		 FROM auctions WHERE id = ?`
	if forUpdate {
		query += db.RowLockClause(tx)
	}

	var auction auctiondomain.Auction
	if err := tx.WithContext(ctx).Raw(query, id).Scan(&auction).Error; err != nil {
		return nil, err
	}
	if auction.ID == 0 {
		return nil, nil
	}
	return &auction, nil
}

func (s *Service) loadBids(ctx context.Context, tx *gorm.DB, auctionID snowflake.ID) ([]auctiondomain.Bid, error) {
	var bids []auctiondomain.Bid
	err := tx.WithContext(ctx).Raw(
		`SELECT id, auction_id, user_id, amount, created_at
		 FROM bids
		 WHERE auction_id = ?
		 ORDER BY created_at, id`,
		auctionID,
	).Scan(&bids).Error
	if err != nil {
		return nil, err
	}
	return bids, nil
}

func (s *Service) loadLead(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*leaddomain.Lead, error) {
	var lead leaddomain.Lead
	err := tx.WithContext(ctx).Raw(
		`SELECT id, title, temperature, status, owner_id, batch_id, created_at, updated_at
		 FROM leads WHERE id = ?`,
		id,
	).Scan(&lead).Error
	if err != nil {
		return nil, err
	}
	if lead.ID == 0 {
		return nil, nil
	}
	return &lead, nil
}

func (s *Service) auctionTemperature(ctx context.Context, tx *gorm.DB, auction *auctiondomain.Auction) (leaddomain.Temperature, error) {
	if auction.LeadID == nil {
		// Batch lots are bundles of low-value leads.
		return leaddomain.TemperatureCold, nil
	}
	lead, err := s.loadLead(ctx, tx, *auction.LeadID)
	if err != nil {
		return "", err
	}
	if lead == nil {
		return "", auctiondomain.ErrLeadNotFound
	}
	return lead.Temperature, nil
}
