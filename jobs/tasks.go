package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSettlementWarmup pre-loads settlement views for active sellers.
	TaskSettlementWarmup = "settlement:warmup"
	// TaskSettlementCacheBump invalidates every cached settlement view.
	TaskSettlementCacheBump = "settlement:cache_bump"
)

// DefaultActiveDays is how far back a seller must have activity to be warmed.
const DefaultActiveDays = 30

// SettlementWarmupPayload scopes a warm-up run. Explicit sellers skip discovery.
type SettlementWarmupPayload struct {
	ActiveDays int     `json:"active_days"`
	SellerIDs  []int64 `json:"seller_ids,omitempty"`
}

// NewSettlementWarmupTask constructs an Asynq task.
func NewSettlementWarmupTask(activeDays int, sellerIDs ...int64) (*asynq.Task, error) {
	data, err := json.Marshal(SettlementWarmupPayload{ActiveDays: activeDays, SellerIDs: sellerIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementWarmup, data), nil
}

// CacheBumpPayload records why the cache was invalidated.
type CacheBumpPayload struct {
	Reason string `json:"reason"`
}

// NewCacheBumpTask constructs an Asynq task.
func NewCacheBumpTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(CacheBumpPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementCacheBump, data), nil
}
