package events

import "errors"

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidTopic   = errors.New("invalid_topic")
)

// AuctionTopic names the per-auction event stream.
func AuctionTopic(auctionID string) string { return "auction:" + auctionID }

// BatchTopic is the single stream for batch-formation events.
const BatchTopic = "batches"
