package config

const (
	defaultConfigPath         = "~/.config/archivist/config.toml"
	defaultStateDir           = "~/.local/share/archivist/state"
	defaultLogDir             = "~/.local/share/archivist/logs"
	defaultWorkspaceDir       = "~/.local/share/archivist/workspace"
	defaultWorkflowsDir       = "~/.config/archivist/workflows"
	defaultAPIBind            = "127.0.0.1:7560"
	defaultWorkerListen       = "127.0.0.1:7561"
	defaultBatchSize          = 16
	defaultProgressBucket     = 10
	defaultLivenessRetries    = 3
	defaultLivenessIntervalMS = 1000
	defaultRequestTimeoutSecs = 300
	defaultCheckpointDriver   = DriverSQLite
	defaultGroupConcurrency   = 8
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultRunRetentionHours  = 24
	checkpointDSNEnv          = "ARCHIVIST_CHECKPOINT_DSN"
	apiTokenEnv               = "ARCHIVIST_API_TOKEN"
	otlpEndpointEnv           = "OTEL_EXPORTER_OTLP_ENDPOINT"
	defaultExportIntervalSecs = 15
	defaultNotifyTimeoutSecs  = 10
	defaultNotifyMinStatus    = "KO"
	ntfyTopicEnv              = "ARCHIVIST_NTFY_TOPIC"
)

// Checkpoint drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:     defaultStateDir,
			LogDir:       defaultLogDir,
			WorkspaceDir: defaultWorkspaceDir,
			WorkflowsDir: defaultWorkflowsDir,
			APIBind:      defaultAPIBind,

			RunRetentionHours: defaultRunRetentionHours,
		},
		Distributor: Distributor{
			BatchSize:      defaultBatchSize,
			ProgressBucket: defaultProgressBucket,
		},
		Liveness: Liveness{
			Retries:               defaultLivenessRetries,
			IntervalMS:            defaultLivenessIntervalMS,
			RequestTimeoutSeconds: defaultRequestTimeoutSecs,
		},
		Checkpoint: Checkpoint{
			Driver: defaultCheckpointDriver,
		},
		Worker: Worker{
			Listen: defaultWorkerListen,
		},
		Telemetry: Telemetry{
			ExportIntervalSeconds: defaultExportIntervalSecs,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSecs,
			MinStatus:             defaultNotifyMinStatus,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
