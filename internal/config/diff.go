package config

// DiffResult describes what changed between two configs. Only fields
// that can be safely hot-reloaded are tracked; anything else needs a
// restart.
type DiffResult struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PersonaChanged means new sessions get the new fallback persona;
	// in-flight sessions keep the one they started with.
	PersonaChanged bool

	// HeartbeatChanged covers idle timeout, nudge budget and the
	// enable flag.
	HeartbeatChanged bool

	// MinConfidenceChanged applies to new sessions only.
	MinConfidenceChanged bool
}

// Diff compares old and new configs and returns what changed among the
// hot-reloadable fields.
func Diff(old, new *Config) DiffResult {
	d := DiffResult{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Session.Persona != new.Session.Persona {
		d.PersonaChanged = true
	}
	if old.Session.HeartbeatEnabled != new.Session.HeartbeatEnabled ||
		old.Session.IdleTimeout != new.Session.IdleTimeout ||
		old.Session.MaxNudges != new.Session.MaxNudges {
		d.HeartbeatChanged = true
	}
	if old.Session.MinConfidence != new.Session.MinConfidence {
		d.MinConfidenceChanged = true
	}
	return d
}

// Empty reports whether no hot-reloadable field changed.
func (d DiffResult) Empty() bool {
	return !d.LogLevelChanged && !d.PersonaChanged && !d.HeartbeatChanged && !d.MinConfidenceChanged
}
