package migration

import (
	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
	batchdomain "github.com/leadex/leadex/internal/batch/domain"
	"github.com/leadex/leadex/internal/config"
	leaddomain "github.com/leadex/leadex/internal/lead/domain"
	ledgerdomain "github.com/leadex/leadex/internal/ledger/domain"
	userdomain "github.com/leadex/leadex/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if !cfg.RunMigrations {
			return nil
		}

		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// sqlite and mysql deployments are for local development; gorm's
		// schema sync is enough there.
		return conn.AutoMigrate(
			&userdomain.User{},
			&leaddomain.Lead{},
			&ledgerdomain.CreditHold{},
			&ledgerdomain.LedgerEntry{},
			&ledgerdomain.PaymentEvent{},
			&auctiondomain.Auction{},
			&auctiondomain.Bid{},
			&auctiondomain.BidRequest{},
			&batchdomain.BatchAuction{},
			&batchdomain.BatchAuctionLead{},
			&batchdomain.BatchSettings{},
		)
	}),
)
