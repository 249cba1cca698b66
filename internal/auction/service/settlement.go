package service

import (
	"context"
	"time"

	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
	"github.com/leadex/leadex/internal/events"
	leaddomain "github.com/leadex/leadex/internal/lead/domain"
	ledgerdomain "github.com/leadex/leadex/internal/ledger/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// settleTx moves the auction out of open exactly once. The conditional update
// gated on its affected-row count is the only gate: when it reports zero rows
// another settlement already ran and the caller observes OutcomeAlreadyClosed.
func (s *Service) settleTx(
	ctx context.Context,
	tx *gorm.DB,
	auction *auctiondomain.Auction,
	winner *auctiondomain.Bid,
	now time.Time,
) (*auctiondomain.SettlementResult, []events.Event, error) {
	if winner == nil {
		return s.settleExpiredTx(ctx, tx, auction, now)
	}

	result := tx.WithContext(ctx).Exec(
		`UPDATE auctions
		 SET status = ?, winning_bid_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		auctiondomain.StatusClosedWon,
		winner.ID,
		now,
		auction.ID,
		auctiondomain.StatusOpen,
	)
	if result.Error != nil {
		return nil, nil, result.Error
	}
	if result.RowsAffected == 0 {
		return &auctiondomain.SettlementResult{
			Outcome: auctiondomain.OutcomeAlreadyClosed,
			Auction: auction,
		}, nil, nil
	}

	if err := s.transferLeads(ctx, tx, auction, winner, now); err != nil {
		return nil, nil, err
	}

	hold, err := s.ledger.ActiveHold(ctx, tx, winner.UserID, auction.ID)
	if err != nil {
		return nil, nil, err
	}
	if hold == nil {
		s.log.Error("winning bid has no active hold",
			zap.String("auction_id", auction.ID.String()),
			zap.String("bid_id", winner.ID.String()),
		)
		return nil, nil, ledgerdomain.ErrHoldNotFound
	}
	if err := s.ledger.Consume(ctx, tx, hold, winner.ID); err != nil {
		return nil, nil, err
	}

	holds, err := s.ledger.ActiveHoldsForAuction(ctx, tx, auction.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, other := range holds {
		if other.ID == hold.ID {
			continue
		}
		if err := s.ledger.Release(ctx, tx, other.ID); err != nil {
			return nil, nil, err
		}
	}

	auction.Status = auctiondomain.StatusClosedWon
	auction.WinningBidID = &winner.ID
	auction.UpdatedAt = now

	settlement := &auctiondomain.SettlementResult{
		Outcome:    auctiondomain.OutcomeWon,
		Auction:    auction,
		WinningBid: winner,
	}
	event := events.NewEvent(events.TypeAuctionClosed, events.AuctionTopic(auction.ID.String()), map[string]any{
		"auction_id": auction.ID.String(),
		"outcome":    string(auctiondomain.OutcomeWon),
		"winner_id":  winner.UserID.String(),
		"amount":     winner.Amount.String(),
	})
	return settlement, []events.Event{event}, nil
}

func (s *Service) settleExpiredTx(
	ctx context.Context,
	tx *gorm.DB,
	auction *auctiondomain.Auction,
	now time.Time,
) (*auctiondomain.SettlementResult, []events.Event, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE auctions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		auctiondomain.StatusClosedExpired,
		now,
		auction.ID,
		auctiondomain.StatusOpen,
	)
	if result.Error != nil {
		return nil, nil, result.Error
	}
	if result.RowsAffected == 0 {
		return &auctiondomain.SettlementResult{
			Outcome: auctiondomain.OutcomeAlreadyClosed,
			Auction: auction,
		}, nil, nil
	}

	if err := s.freezeLeads(ctx, tx, auction, now); err != nil {
		return nil, nil, err
	}

	auction.Status = auctiondomain.StatusClosedExpired
	auction.UpdatedAt = now

	settlement := &auctiondomain.SettlementResult{
		Outcome: auctiondomain.OutcomeExpiredNoBids,
		Auction: auction,
	}
	event := events.NewEvent(events.TypeAuctionClosed, events.AuctionTopic(auction.ID.String()), map[string]any{
		"auction_id": auction.ID.String(),
		"outcome":    string(auctiondomain.OutcomeExpiredNoBids),
	})
	return settlement, []events.Event{event}, nil
}

func (s *Service) transferLeads(ctx context.Context, tx *gorm.DB, auction *auctiondomain.Auction, winner *auctiondomain.Bid, now time.Time) error {
	if auction.LeadID != nil {
		return tx.WithContext(ctx).Exec(
			`UPDATE leads SET owner_id = ?, status = ?, updated_at = ? WHERE id = ?`,
			winner.UserID,
			leaddomain.StatusSold,
			now,
			*auction.LeadID,
		).Error
	}
	if auction.BatchID != nil {
		return tx.WithContext(ctx).Exec(
			`UPDATE leads SET owner_id = ?, status = ?, updated_at = ? WHERE batch_id = ?`,
			winner.UserID,
			leaddomain.StatusSold,
			now,
			*auction.BatchID,
		).Error
	}
	return nil
}

// freezeLeads parks unsold inventory. Single leads freeze by temperature so
// hot ones can be re-auctioned and cold ones become batch-eligible; batch
// lots restore each lead's pre-batch status from the junction rows.
func (s *Service) freezeLeads(ctx context.Context, tx *gorm.DB, auction *auctiondomain.Auction, now time.Time) error {
	if auction.LeadID != nil {
		lead, err := s.loadLead(ctx, tx, *auction.LeadID)
		if err != nil {
			return err
		}
		if lead == nil {
			return auctiondomain.ErrLeadNotFound
		}
		return tx.WithContext(ctx).Exec(
			`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`,
			leaddomain.FrozenStatus(lead.Temperature),
			now,
			lead.ID,
		).Error
	}

	if auction.BatchID != nil {
		var entries []struct {
			LeadID      int64
			PriorStatus string
		}
		if err := tx.WithContext(ctx).Raw(
			`SELECT lead_id, prior_status FROM batch_auction_leads WHERE batch_id = ?`,
			*auction.BatchID,
		).Scan(&entries).Error; err != nil {
			return err
		}
		for _, entry := range entries {
			if err := tx.WithContext(ctx).Exec(
				`UPDATE leads SET status = ?, batch_id = NULL, updated_at = ? WHERE id = ?`,
				entry.PriorStatus,
				now,
				entry.LeadID,
			).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
