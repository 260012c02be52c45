package replication

import "github.com/gear6io/slate/pkg/errors"

// Package-specific error codes for replication
var (
	ErrStatusEncode      = errors.MustNewCode("replication.status_encode_failed")
	ErrStatusDecode      = errors.MustNewCode("replication.status_decode_failed")
	ErrTargetMalformed   = errors.MustNewCode("replication.target_malformed")
	ErrOrderRowMalformed = errors.MustNewCode("replication.order_row_malformed")
	ErrQueueKeyMalformed = errors.MustNewCode("replication.queue_key_malformed")
	ErrTableEnsure       = errors.MustNewCode("replication.table_ensure_failed")
	ErrSourceScan        = errors.MustNewCode("replication.source_scan_failed")
	ErrStatusScan        = errors.MustNewCode("replication.status_scan_failed")
	ErrWorkScan          = errors.MustNewCode("replication.work_scan_failed")
	ErrOrderScan         = errors.MustNewCode("replication.order_scan_failed")
	ErrQueueRecovery     = errors.MustNewCode("replication.queue_recovery_failed")
)
