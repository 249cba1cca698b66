package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
	batchdomain "github.com/leadex/leadex/internal/batch/domain"
	"github.com/leadex/leadex/internal/clock"
	"github.com/leadex/leadex/internal/config"
	"github.com/leadex/leadex/internal/events"
	leaddomain "github.com/leadex/leadex/internal/lead/domain"
	ledgerdomain "github.com/leadex/leadex/internal/ledger/domain"
	ledgerservice "github.com/leadex/leadex/internal/ledger/service"
	userdomain "github.com/leadex/leadex/internal/user/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	ledger ledgerdomain.Service
	svc    auctiondomain.Service
	hub    *events.Hub
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&leaddomain.Lead{},
		&ledgerdomain.CreditHold{},
		&ledgerdomain.LedgerEntry{},
		&auctiondomain.Auction{},
		&auctiondomain.Bid{},
		&auctiondomain.BidRequest{},
		&batchdomain.BatchAuction{},
		&batchdomain.BatchAuctionLead{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{Log: zap.NewNop(), GenID: node, Clock: fakeClock})
	hub := events.NewHub()

	svc := NewService(Params{
		DB:     db,
		Cfg:    config.Config{BidLockTimeout: time.Second},
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fakeClock,
		Ledger: ledgerSvc,
		Hub:    hub,
	})

	return &fixture{db: db, node: node, clock: fakeClock, ledger: ledgerSvc, svc: svc, hub: hub}
}

func (f *fixture) createUser(t *testing.T, balance string) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO users (id, email, role, api_token, balance) VALUES (?, ?, 'buyer', ?, ?)`,
		id,
		id.String()+"@example.com",
		"tok-"+id.String(),
		decimal.RequireFromString(balance),
	).Error)
	return id
}

func (f *fixture) createLead(t *testing.T, temperature leaddomain.Temperature) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO leads (id, title, temperature, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		"lead "+id.String(),
		temperature,
		leaddomain.StatusAvailable,
		now,
		now,
	).Error)
	return id
}

func (f *fixture) openAuction(t *testing.T, temperature leaddomain.Temperature, minimum string, ttl time.Duration) *auctiondomain.Auction {
	t.Helper()
	leadID := f.createLead(t, temperature)
	auction, err := f.svc.CreateForLead(context.Background(), leadID, decimal.RequireFromString(minimum), ttl)
	require.NoError(t, err)
	return auction
}

func (f *fixture) bid(t *testing.T, auctionID, userID snowflake.ID, amount string) *auctiondomain.PlaceBidResult {
	t.Helper()
	result, err := f.svc.PlaceBid(context.Background(), auctiondomain.PlaceBidRequest{
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) leadStatus(t *testing.T, leadID snowflake.ID) leaddomain.Status {
	t.Helper()
	var lead leaddomain.Lead
	require.NoError(t, f.db.Raw(`SELECT * FROM leads WHERE id = ?`, leadID).Scan(&lead).Error)
	return lead.Status
}

func (f *fixture) auctionRow(t *testing.T, id snowflake.ID) auctiondomain.Auction {
	t.Helper()
	var auction auctiondomain.Auction
	require.NoError(t, f.db.Raw(`SELECT * FROM auctions WHERE id = ?`, id).Scan(&auction).Error)
	return auction
}

func (f *fixture) holds(t *testing.T, auctionID snowflake.ID) []ledgerdomain.CreditHold {
	t.Helper()
	var holds []ledgerdomain.CreditHold
	require.NoError(t, f.db.Raw(
		`SELECT * FROM credit_holds WHERE auction_id = ? ORDER BY id`, auctionID,
	).Scan(&holds).Error)
	return holds
}

func TestPlaceBidAcceptsOpeningBid(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Hour)
	buyer := f.createUser(t, "500")

	result := f.bid(t, auction.ID, buyer, "100")
	assert.True(t, result.Bid.Amount.Equal(decimal.RequireFromString("100")))
	assert.True(t, result.AvailableCredit.Equal(decimal.RequireFromString("400")))
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, auction.ExpiresAt, *result.ExpiresAt)

	// Accepting a bid raises the next minimum by 10%.
	row := f.auctionRow(t, auction.ID)
	assert.True(t, row.MinimumBid.Equal(decimal.RequireFromString("110")))
}

func TestPlaceBidRejectsBelowMinimum(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Hour)
	buyer := f.createUser(t, "500")

	_, err := f.svc.PlaceBid(context.Background(), auctiondomain.PlaceBidRequest{
		AuctionID: auction.ID,
		UserID:    buyer,
		Amount:    decimal.RequireFromString("99"),
	})
	btl := auctiondomain.AsBidTooLow(err)
	require.NotNil(t, btl)
	assert.True(t, btl.Minimum.Equal(decimal.RequireFromString("100")))

	f.bid(t, auction.ID, buyer, "100")

	other := f.createUser(t, "500")
	_, err = f.svc.PlaceBid(context.Background(), auctiondomain.PlaceBidRequest{
		AuctionID: auction.ID,
		UserID:    other,
		Amount:    decimal.RequireFromString("105"),
	})
	btl = auctiondomain.AsBidTooLow(err)
	require.NotNil(t, btl)
	assert.True(t, btl.Minimum.Equal(decimal.RequireFromString("110")))
}

func TestOutbidReleasesPreviousHold(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Hour)
	alice := f.createUser(t, "100")
	bob := f.createUser(t, "500")

	f.bid(t, auction.ID, alice, "100")
	f.clock.Advance(time.Second)
	f.bid(t, auction.ID, bob, "110")

	// Alice's credits are free again the moment she is outbid.
	summary, err := f.ledger.AvailableCredit(context.Background(), f.db, alice)
	require.NoError(t, err)
	assert.True(t, summary.Available.Equal(decimal.RequireFromString("100")))

	holds := f.holds(t, auction.ID)
	require.Len(t, holds, 2)
	for _, hold := range holds {
		switch hold.UserID {
		case alice:
			assert.Equal(t, ledgerdomain.HoldStatusReleased, hold.Status)
		case bob:
			assert.Equal(t, ledgerdomain.HoldStatusActive, hold.Status)
			assert.True(t, hold.Amount.Equal(decimal.RequireFromString("110")))
		}
	}
}

func TestRebidKeepsSingleHold(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Hour)
	buyer := f.createUser(t, "500")

	f.bid(t, auction.ID, buyer, "100")
	f.clock.Advance(time.Second)
	f.bid(t, auction.ID, buyer, "120")

	holds := f.holds(t, auction.ID)
	require.Len(t, holds, 1)
	assert.Equal(t, ledgerdomain.HoldStatusActive, holds[0].Status)
	assert.True(t, holds[0].Amount.Equal(decimal.RequireFromString("120")))
}

func TestInsufficientCreditsRejectsBid(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Hour)
	buyer := f.createUser(t, "50")

	_, err := f.svc.PlaceBid(context.Background(), auctiondomain.PlaceBidRequest{
		AuctionID: auction.ID,
		UserID:    buyer,
		Amount:    decimal.RequireFromString("100"),
	})
	ice := ledgerdomain.AsInsufficientCredits(err)
	require.NotNil(t, ice)
	assert.True(t, ice.Shortfall.Equal(decimal.RequireFromString("50")))

	// The rejected bid left no trace.
	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM bids WHERE auction_id = ?`, auction.ID).Scan(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, f.holds(t, auction.ID))
}

func TestBuyNowSettlesInline(t *testing.T) {
	// Scenario C: hot lead, top bid 100 -> required 110 -> buy-now 132.
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureHot, "100", time.Hour)
	rival := f.createUser(t, "500")
	buyer := f.createUser(t, "500")

	f.bid(t, auction.ID, rival, "100")
	f.clock.Advance(time.Second)

	result, err := f.svc.PlaceBid(context.Background(), auctiondomain.PlaceBidRequest{
		AuctionID: auction.ID,
		UserID:    buyer,
		BuyNow:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Settlement)
	assert.Equal(t, auctiondomain.OutcomeWon, result.Settlement.Outcome)
	assert.True(t, result.Bid.Amount.Equal(decimal.RequireFromString("132")))

	row := f.auctionRow(t, auction.ID)
	assert.Equal(t, auctiondomain.StatusClosedWon, row.Status)
	require.NotNil(t, row.WinningBidID)
	assert.Equal(t, result.Bid.ID, *row.WinningBidID)

	assert.Equal(t, leaddomain.StatusSold, f.leadStatus(t, *auction.LeadID))

	// Winner debited, rival's hold released.
	winnerSummary, err := f.ledger.AvailableCredit(context.Background(), f.db, buyer)
	require.NoError(t, err)
	assert.True(t, winnerSummary.Balance.Equal(decimal.RequireFromString("368")))
	assert.True(t, winnerSummary.Held.IsZero())

	rivalSummary, err := f.ledger.AvailableCredit(context.Background(), f.db, rival)
	require.NoError(t, err)
	assert.True(t, rivalSummary.Available.Equal(decimal.RequireFromString("500")))
}

func TestAntiSnipeExtendsExpiry(t *testing.T) {
	// Scenario D: a bid landing with less than 60s left pushes expiry to
	// now+60s.
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", 2*time.Minute)
	buyer := f.createUser(t, "500")

	f.clock.Advance(90 * time.Second)
	result := f.bid(t, auction.ID, buyer, "100")

	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(auctiondomain.AntiSnipeWindow), *result.ExpiresAt)

	row := f.auctionRow(t, auction.ID)
	assert.Equal(t, f.clock.Now().Add(auctiondomain.AntiSnipeWindow), row.ExpiresAt.UTC())
}

func TestBidOutsideAntiSnipeWindowKeepsExpiry(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Hour)
	buyer := f.createUser(t, "500")

	result := f.bid(t, auction.ID, buyer, "100")
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, auction.ExpiresAt, *result.ExpiresAt)
}

func TestPlaceBidOnExpiredAuction(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Minute)
	buyer := f.createUser(t, "500")

	f.clock.Advance(2 * time.Minute)

	_, err := f.svc.PlaceBid(context.Background(), auctiondomain.PlaceBidRequest{
		AuctionID: auction.ID,
		UserID:    buyer,
		Amount:    decimal.RequireFromString("100"),
	})
	assert.ErrorIs(t, err, auctiondomain.ErrAuctionClosed)
}

func TestPlaceBidUnknownAuction(t *testing.T) {
	f := setup(t)
	buyer := f.createUser(t, "500")

	_, err := f.svc.PlaceBid(context.Background(), auctiondomain.PlaceBidRequest{
		AuctionID: f.node.Generate(),
		UserID:    buyer,
		Amount:    decimal.RequireFromString("100"),
	})
	assert.ErrorIs(t, err, auctiondomain.ErrAuctionNotFound)
}

func TestPlaceBidInvalidAmount(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Hour)
	buyer := f.createUser(t, "500")

	_, err := f.svc.PlaceBid(context.Background(), auctiondomain.PlaceBidRequest{
		AuctionID: auction.ID,
		UserID:    buyer,
		Amount:    decimal.Zero,
	})
	assert.ErrorIs(t, err, auctiondomain.ErrInvalidAmount)
}

func TestDuplicateIdempotencyKey(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Hour)
	buyer := f.createUser(t, "500")

	req := auctiondomain.PlaceBidRequest{
		AuctionID:      auction.ID,
		UserID:         buyer,
		Amount:         decimal.RequireFromString("100"),
		IdempotencyKey: "req-1",
	}
	_, err := f.svc.PlaceBid(context.Background(), req)
	require.NoError(t, err)

	req.Amount = decimal.RequireFromString("200")
	_, err = f.svc.PlaceBid(context.Background(), req)
	assert.ErrorIs(t, err, auctiondomain.ErrDuplicateRequest)

	// Only the first submission produced a bid.
	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM bids WHERE auction_id = ?`, auction.ID).Scan(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCloseSettlesOnce(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Hour)
	winner := f.createUser(t, "500")
	loser := f.createUser(t, "500")

	f.bid(t, auction.ID, loser, "100")
	f.clock.Advance(time.Second)
	f.bid(t, auction.ID, winner, "110")

	first, err := f.svc.Close(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, auctiondomain.OutcomeWon, first.Outcome)
	require.NotNil(t, first.WinningBid)
	assert.Equal(t, winner, first.WinningBid.UserID)

	assert.Equal(t, leaddomain.StatusSold, f.leadStatus(t, *auction.LeadID))

	winnerSummary, err := f.ledger.AvailableCredit(context.Background(), f.db, winner)
	require.NoError(t, err)
	assert.True(t, winnerSummary.Balance.Equal(decimal.RequireFromString("390")))

	loserSummary, err := f.ledger.AvailableCredit(context.Background(), f.db, loser)
	require.NoError(t, err)
	assert.True(t, loserSummary.Available.Equal(decimal.RequireFromString("500")))

	// Exactly-once: a repeated close changes nothing.
	second, err := f.svc.Close(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, auctiondomain.OutcomeAlreadyClosed, second.Outcome)

	winnerSummary, err = f.ledger.AvailableCredit(context.Background(), f.db, winner)
	require.NoError(t, err)
	assert.True(t, winnerSummary.Balance.Equal(decimal.RequireFromString("390")))
}

func TestCloseNoBidsFreezesLeadByTemperature(t *testing.T) {
	tests := []struct {
		temperature leaddomain.Temperature
		want        leaddomain.Status
	}{
		{temperature: leaddomain.TemperatureHot, want: leaddomain.StatusHighFrozen},
		{temperature: leaddomain.TemperatureCold, want: leaddomain.StatusLowFrozen},
	}

	for _, tt := range tests {
		t.Run(string(tt.temperature), func(t *testing.T) {
			f := setup(t)
			auction := f.openAuction(t, tt.temperature, "100", time.Minute)

			f.clock.Advance(2 * time.Minute)
			settlement, err := f.svc.Close(context.Background(), auction.ID)
			require.NoError(t, err)
			assert.Equal(t, auctiondomain.OutcomeExpiredNoBids, settlement.Outcome)
			assert.Equal(t, tt.want, f.leadStatus(t, *auction.LeadID))
		})
	}
}

func TestCreateForLeadRequiresAvailableLead(t *testing.T) {
	f := setup(t)
	leadID := f.createLead(t, leaddomain.TemperatureCold)

	_, err := f.svc.CreateForLead(context.Background(), leadID, decimal.RequireFromString("100"), time.Hour)
	require.NoError(t, err)

	// The lead is now auctioned; a second auction is refused.
	_, err = f.svc.CreateForLead(context.Background(), leadID, decimal.RequireFromString("100"), time.Hour)
	assert.ErrorIs(t, err, auctiondomain.ErrLeadNotAvailable)

	_, err = f.svc.CreateForLead(context.Background(), f.node.Generate(), decimal.RequireFromString("100"), time.Hour)
	assert.ErrorIs(t, err, auctiondomain.ErrLeadNotFound)
}

func TestPlaceBidPublishesEvent(t *testing.T) {
	f := setup(t)
	auction := f.openAuction(t, leaddomain.TemperatureCold, "100", time.Hour)
	buyer := f.createUser(t, "500")

	sub, _, err := f.hub.Subscribe(events.AuctionTopic(auction.ID.String()))
	require.NoError(t, err)
	defer sub.Close()

	f.bid(t, auction.ID, buyer, "100")

	select {
	case event := <-sub.Events():
		assert.Equal(t, events.TypeBidPlaced, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a bid.placed event")
	}
}
