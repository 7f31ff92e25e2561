package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"usdc-bridge/pkg/history"
	"usdc-bridge/pkg/telemetry"
	"usdc-bridge/pkg/types"
)

// DefaultStatusInterval is the polling period of WatchStatus
const DefaultStatusInterval = 15 * time.Second

// StatusUpdate is reported after every WatchStatus poll
type StatusUpdate struct {
	Check    int
	Status   types.BridgeStatus
	Raw      string // aggregator status text
	Response *types.StatusResponse
}

// Status looks up a source-chain transaction once
func (s *Service) Status(ctx context.Context, txHash string) (resp *types.StatusResponse, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bridge.Status")
	defer func() { telemetry.EndSpan(span, err) }()

	if txHash == "" {
		return nil, fmt.Errorf("%w: transaction hash is required", types.ErrValidation)
	}
	return s.agg.GetStatus(ctx, s.registry.Source().ChainID, txHash)
}

// WatchStatus polls Status until the transfer reaches a terminal state, ctx is done,
// or maxChecks polls were made (0 means unlimited). The ledger record, if any, is
// updated after each poll.
func (s *Service) WatchStatus(ctx context.Context, txHash string, interval time.Duration, maxChecks int, onUpdate func(StatusUpdate)) (types.BridgeStatus, error) {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}

	for check := 1; ; check++ {
		resp, err := s.Status(ctx, txHash)
		if err != nil {
			return types.StatusPending, err
		}

		status, raw := ClassifyStatus(resp)
		s.log.WithFields(logrus.Fields{
			"tx":     txHash,
			"check":  check,
			"status": raw,
		}).Debug("Status poll")

		s.updateRecord(txHash, resp, status, raw)
		if onUpdate != nil {
			onUpdate(StatusUpdate{Check: check, Status: status, Raw: raw, Response: resp})
		}

		if status.IsTerminal() {
			return status, nil
		}
		if maxChecks > 0 && check >= maxChecks {
			return status, nil
		}

		if err := s.sleep(ctx, interval); err != nil {
			return status, err
		}
	}
}

// ClassifyStatus maps the first status record to a lifecycle state. The
// destination-side result takes precedence once the aggregator reports one.
func ClassifyStatus(resp *types.StatusResponse) (types.BridgeStatus, string) {
	if resp == nil || len(resp.Records) == 0 {
		return types.StatusPending, ""
	}

	rec := resp.Records[0]
	raw := rec.Status
	if isFailure(raw) {
		return types.StatusFailed, raw
	}
	if rec.CrossChainResult != nil && rec.CrossChainResult.Status != "" {
		raw = rec.CrossChainResult.Status
	}

	switch {
	case isFailure(raw):
		return types.StatusFailed, raw
	case isSuccess(raw):
		return types.StatusCompleted, raw
	default:
		return types.StatusPending, raw
	}
}

func isSuccess(s string) bool {
	s = strings.ToUpper(s)
	return strings.Contains(s, "SUCCESS") || strings.Contains(s, "COMPLETE")
}

func isFailure(s string) bool {
	s = strings.ToUpper(s)
	return strings.Contains(s, "FAIL") || strings.Contains(s, "REFUND") || strings.Contains(s, "ERROR")
}

func (s *Service) updateRecord(txHash string, resp *types.StatusResponse, status types.BridgeStatus, raw string) {
	if s.ledger == nil {
		return
	}

	rec, err := s.ledger.FindByTxHash(txHash)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			s.log.WithError(err).Warn("Failed to read bridge history")
		}
		return
	}

	rec.Result.Status = status
	rec.LastStatus = raw
	rec.StatusChecks++
	if len(resp.Records) > 0 && resp.Records[0].CrossChainResult != nil {
		rec.DestTxHash = resp.Records[0].CrossChainResult.ToChainTxHash
	}
	if err := s.ledger.Update(rec); err != nil {
		s.log.WithError(err).Warn("Failed to update bridge history")
	}
}
