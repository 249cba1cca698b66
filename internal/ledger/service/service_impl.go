package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/leadex/leadex/internal/clock"
	ledgerdomain "github.com/leadex/leadex/internal/ledger/domain"
	"github.com/leadex/leadex/pkg/db"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) AvailableCredit(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (ledgerdomain.CreditSummary, error) {
	balance, err := s.loadBalance(ctx, tx, userID, false)
	if err != nil {
		return ledgerdomain.CreditSummary{}, err
	}

	holds, err := s.activeHoldsForUser(ctx, tx, userID)
	if err != nil {
		return ledgerdomain.CreditSummary{}, err
	}

	held := decimal.Zero
	for _, hold := range holds {
		held = held.Add(hold.Amount)
	}

	return ledgerdomain.CreditSummary{
		Balance:   balance,
		Held:      held,
		Available: balance.Sub(held),
	}, nil
}

func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, userID, auctionID, bidID snowflake.ID, amount decimal.Decimal) (*ledgerdomain.CreditHold, error) {
	if amount.Sign() <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	balance, err := s.loadBalance(ctx, tx, userID, true)
	if err != nil {
		return nil, err
	}

	holds, err := s.activeHoldsForUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	// Credits already held for this auction are replaced by the new amount,
	// so they do not count against the free balance.
	var current *ledgerdomain.CreditHold
	heldElsewhere := decimal.Zero
	for i := range holds {
		if holds[i].AuctionID == auctionID {
			current = &holds[i]
			continue
		}
		heldElsewhere = heldElsewhere.Add(holds[i].Amount)
	}

	free := balance.Sub(heldElsewhere)
	if free.Cmp(amount) < 0 {
		return nil, &ledgerdomain.InsufficientCreditsError{
			Required:  amount,
			Available: free,
			Shortfall: amount.Sub(free),
		}
	}

	now := s.clock.Now()
	if current != nil {
		result := tx.WithContext(ctx).Exec(
			`UPDATE credit_holds
			 SET amount = ?, bid_id = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			amount,
			bidID,
			now,
			current.ID,
			ledgerdomain.HoldStatusActive,
		)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ledgerdomain.ErrHoldNotActive
		}
		current.Amount = amount
		current.BidID = &bidID
		current.UpdatedAt = now
		return current, nil
	}

	hold := &ledgerdomain.CreditHold{
		ID:        s.genID.Generate(),
		UserID:    userID,
		AuctionID: auctionID,
		BidID:     &bidID,
		Amount:    amount,
		Status:    ledgerdomain.HoldStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO credit_holds (id, user_id, auction_id, bid_id, amount, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hold.ID,
		hold.UserID,
		hold.AuctionID,
		bidID,
		hold.Amount,
		hold.Status,
		now,
		now,
	).Error; err != nil {
		return nil, err
	}
	return hold, nil
}

func (s *Service) ActiveHold(ctx context.Context, tx *gorm.DB, userID, auctionID snowflake.ID) (*ledgerdomain.CreditHold, error) {
	var hold ledgerdomain.CreditHold
	err := tx.WithContext(ctx).Raw(
		`SELECT id, user_id, auction_id, bid_id, amount, status, created_at, updated_at
		 FROM credit_holds
		 WHERE user_id = ? AND auction_id = ? AND status = ?`,
		userID,
		auctionID,
		ledgerdomain.HoldStatusActive,
	).Scan(&hold).Error
	if err != nil {
		return nil, err
	}
	if hold.ID == 0 {
		return nil, nil
	}
	return &hold, nil
}

func (s *Service) ActiveHoldsForAuction(ctx context.Context, tx *gorm.DB, auctionID snowflake.ID) ([]ledgerdomain.CreditHold, error) {
	var holds []ledgerdomain.CreditHold
	err := tx.WithContext(ctx).Raw(
		`SELECT id, user_id, auction_id, bid_id, amount, status, created_at, updated_at
		 FROM credit_holds
		 WHERE auction_id = ? AND status = ?
		 ORDER BY id`,
		auctionID,
		ledgerdomain.HoldStatusActive,
	).Scan(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

func (s *Service) Release(ctx context.Context, tx *gorm.DB, holdID snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE credit_holds
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		ledgerdomain.HoldStatusReleased,
		s.clock.Now(),
		holdID,
		ledgerdomain.HoldStatusActive,
	).Error
}

func (s *Service) Consume(ctx context.Context, tx *gorm.DB, hold *ledgerdomain.CreditHold, sourceID snowflake.ID) error {
	if hold == nil {
		return ledgerdomain.ErrHoldNotFound
	}

	now := s.clock.Now()
	result := tx.WithContext(ctx).Exec(
		`UPDATE credit_holds
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		ledgerdomain.HoldStatusConsumed,
		now,
		hold.ID,
		ledgerdomain.HoldStatusActive,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrHoldNotActive
	}

	balance, err := s.loadBalance(ctx, tx, hold.UserID, true)
	if err != nil {
		return err
	}
	newBalance := balance.Sub(hold.Amount)
	if newBalance.Sign() < 0 {
		s.log.Error("hold exceeds balance at settlement",
			zap.String("hold_id", hold.ID.String()),
			zap.String("user_id", hold.UserID.String()),
			zap.String("amount", hold.Amount.String()),
			zap.String("balance", balance.String()),
		)
		return &ledgerdomain.InsufficientCreditsError{
			Required:  hold.Amount,
			Available: balance,
			Shortfall: hold.Amount.Sub(balance),
		}
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE users SET balance = ?, updated_at = ? WHERE id = ?`,
		newBalance,
		now,
		hold.UserID,
	).Error; err != nil {
		return err
	}

	return s.appendEntry(ctx, tx, hold.UserID, ledgerdomain.EntryDirectionDebit, hold.Amount, ledgerdomain.SourceTypeSettlement, sourceID, now)
}

func (s *Service) Credit(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amount decimal.Decimal, sourceType ledgerdomain.SourceType, sourceID snowflake.ID) error {
	if amount.Sign() <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}

	balance, err := s.loadBalance(ctx, tx, userID, true)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := tx.WithContext(ctx).Exec(
		`UPDATE users SET balance = ?, updated_at = ? WHERE id = ?`,
		balance.Add(amount),
		now,
		userID,
	).Error; err != nil {
		return err
	}

	return s.appendEntry(ctx, tx, userID, ledgerdomain.EntryDirectionCredit, amount, sourceType, sourceID, now)
}

func (s *Service) appendEntry(
	ctx context.Context,
	tx *gorm.DB,
	userID snowflake.ID,
	direction ledgerdomain.EntryDirection,
	amount decimal.Decimal,
	sourceType ledgerdomain.SourceType,
	sourceID snowflake.ID,
	now time.Time,
) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (id, tx_id, user_id, account, direction, amount, source_type, source_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		uuid.NewString(),
		userID,
		ledgerdomain.AccountCreditBalance,
		direction,
		amount,
		sourceType,
		sourceID,
		now,
	).Error
}

func (s *Service) loadBalance(ctx context.Context, tx *gorm.DB, userID snowflake.ID, forUpdate bool) (decimal.Decimal, error) {
	query := `SELECT id, balance FROM users WHERE id = ?`
	if forUpdate {
		query += db.RowLockClause(tx)
	}

	var row struct {
		ID      snowflake.ID
		Balance decimal.Decimal
	}
	if err := tx.WithContext(ctx).Raw(query, userID).Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	if row.ID == 0 {
		return decimal.Zero, ledgerdomain.ErrUserNotFound
	}
	return row.Balance, nil
}

func (s *Service) activeHoldsForUser(ctx context.Context, tx *gorm.DB, userID snowflake.ID) ([]ledgerdomain.CreditHold, error) {
	var holds []ledgerdomain.CreditHold
	err := tx.WithContext(ctx).Raw(
		`SELECT id, user_id, auction_id, bid_id, amount, status, created_at, updated_at
		 FROM credit_holds
		 WHERE user_id = ? AND status = ?`,
		userID,
		ledgerdomain.HoldStatusActive,
	).Scan(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}
