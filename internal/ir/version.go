package ir

// Version constants for the log schema and engine.
const (
	// IRVersion is the record schema version.
	IRVersion = "1"

	// EngineVersion is recorded on every action so replays can detect
	// logs written by a different engine build.
	EngineVersion = "0.1.0"
)
