package store

import "github.com/gear6io/slate/pkg/errors"

// Store-specific error codes shared by all engine implementations
var (
	ErrTableNotFound  = errors.MustNewCode("store.table_not_found")
	ErrScanFailed     = errors.MustNewCode("store.scan_failed")
	ErrFlushRejected  = errors.MustNewCode("store.flush_rejected")
	ErrWriterClosed   = errors.MustNewCode("store.writer_closed")
	ErrCombineFailed  = errors.MustNewCode("store.combine_failed")
	ErrStoreClosed    = errors.MustNewCode("store.closed")
	ErrInvalidRequest = errors.MustNewCode("store.invalid_request")
)
