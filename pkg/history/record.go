// Package history keeps a local ledger of submitted bridge transfers.
package history

import (
	"time"

	"usdc-bridge/pkg/types"
)

// Record is one submitted bridge transfer
type Record struct {
	ID          string    `json:"id"`
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`

	Result        types.BridgeResult `json:"result"`
	BridgeName    string             `json:"bridge_name"`
	SourceChainID string             `json:"source_chain_id"`
	Destination   string             `json:"destination"`
	ExplorerURL   string             `json:"explorer_url"`

	// Latest status as reported by the aggregator
	LastStatus   string `json:"last_status,omitempty"`
	DestTxHash   string `json:"dest_tx_hash,omitempty"`
	StatusChecks int    `json:"status_checks"`
}

// Status returns the lifecycle state of the transfer
func (r *Record) Status() types.BridgeStatus {
	return r.Result.Status
}
