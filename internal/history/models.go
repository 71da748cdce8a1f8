package history

import "time"

const SchemaVersion = 1

// Snapshot summarizes one completed documentation build.
type Snapshot struct {
	SchemaVersion int       `json:"schema_version"`
	BuildID       string    `json:"build_id"`
	Timestamp     time.Time `json:"timestamp"`

	PackageCount   int `json:"package_count"`
	ModuleCount    int `json:"module_count"`
	ClassCount     int `json:"class_count"`
	FunctionCount  int `json:"function_count"`
	AttributeCount int `json:"attribute_count"`

	ParseErrorCount int `json:"parse_error_count"`
	WarningCount    int `json:"warning_count"`

	DurationMS int64 `json:"duration_ms"`
}
