package tracker

// Severity is the hazard severity class assigned to a track.  It is derived
// from the detection class when a track is spawned and drives overlay
// priority ordering
type Severity int

const (
	// SeverityMinor covers low risk hazards such as housekeeping issues
	SeverityMinor Severity = 0
	// SeverityMajor covers hazards requiring timely correction
	SeverityMajor Severity = 1
	// SeverityCritical covers imminent danger hazards, these are the last
	// overlays dropped under degraded rendering
	SeverityCritical Severity = 2
)

// String returns a readable name for the severity class
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityMajor:
		return "major"
	case SeverityMinor:
		return "minor"
	}
	return "unknown"
}
