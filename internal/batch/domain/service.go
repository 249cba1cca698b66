package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type RunOutcome string

const (
	// OutcomeCreated means a batch auction was formed.
	OutcomeCreated RunOutcome = "created"
	// OutcomeEmpty means no eligible leads existed.
	OutcomeEmpty RunOutcome = "empty"
	// OutcomeNotEnough means fewer eligible leads than the threshold existed
	// and partial batches were not allowed; retryable after more leads freeze.
	OutcomeNotEnough RunOutcome = "not_enough"
)

type RunRequest struct {
	Trigger      TriggerReason
	BatchSize    int
	AllowPartial bool
	ActorID      snowflake.ID
}

type RunResult struct {
	Outcome   RunOutcome
	Batch     *BatchAuction
	AuctionID snowflake.ID
	// Eligible reports how many leads were found when no batch was formed.
	Eligible int
}

type UpdateSettingsRequest struct {
	Threshold   *int
	UnitPrice   *decimal.Decimal
	AutoTrigger *bool
}

type Service interface {
	// Run harvests eligible leads into a new batch auction. All runs are
	// serialized system-wide; concurrent triggers never double-harvest.
	Run(ctx context.Context, req RunRequest) (*RunResult, error)

	// GetSettings returns the settings row, creating defaults if absent.
	GetSettings(ctx context.Context) (*BatchSettings, error)

	// UpdateSettings validates and applies a read-modify-write update.
	UpdateSettings(ctx context.Context, req UpdateSettingsRequest) (*BatchSettings, error)
}
