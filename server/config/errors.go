package config

import "github.com/gear6io/slate/pkg/errors"

// Config-specific error codes
var (
	ErrConfigFileReadFailed    = errors.MustNewCode("config.file_read_failed")
	ErrConfigFileParseFailed   = errors.MustNewCode("config.file_parse_failed")
	ErrConfigValidationFailed  = errors.MustNewCode("config.validation_failed")
	ErrConfigFileMarshalFailed = errors.MustNewCode("config.file_marshal_failed")
	ErrConfigFileWriteFailed   = errors.MustNewCode("config.file_write_failed")
	ErrDurationParseFailed     = errors.MustNewCode("config.duration_parse_failed")

	// Store validation codes
	ErrStorePathRequired  = errors.MustNewCode("config.store_path_required")
	ErrStoreEngineUnknown = errors.MustNewCode("config.store_engine_unknown")

	// Coordination validation codes
	ErrCoordinationEndpointRequired = errors.MustNewCode("config.coordination_endpoint_required")
	ErrCoordinationQueueRequired    = errors.MustNewCode("config.coordination_queue_required")
	ErrCoordinationListenRequired   = errors.MustNewCode("config.coordination_listen_required")

	// Replication validation codes
	ErrAssignerUnknown      = errors.MustNewCode("config.assigner_unknown")
	ErrCycleIntervalInvalid = errors.MustNewCode("config.cycle_interval_invalid")
	ErrMaxQueuedWorkInvalid = errors.MustNewCode("config.max_queued_work_invalid")
	ErrTargetInvalid        = errors.MustNewCode("config.target_invalid")

	// GC validation codes
	ErrGCIntervalInvalid  = errors.MustNewCode("config.gc_interval_invalid")
	ErrGCWorkersInvalid   = errors.MustNewCode("config.gc_workers_invalid")
	ErrVolumeRootRequired = errors.MustNewCode("config.volume_root_required")
	ErrVolumeS3Incomplete = errors.MustNewCode("config.volume_s3_incomplete")
	ErrVolumeKindUnknown  = errors.MustNewCode("config.volume_kind_unknown")

	// Logging-specific error codes
	ErrLogDirCreateFailed = errors.MustNewCode("config.log_dir_create_failed")
	ErrLogFileOpenFailed  = errors.MustNewCode("config.log_file_open_failed")
	ErrLogRotateFailed    = errors.MustNewCode("config.log_rotate_failed")
)
