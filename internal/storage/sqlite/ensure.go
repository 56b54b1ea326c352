package sqlite

import "github.com/paespro/lectoguia/internal/sourcing"

var (
	_ sourcing.TelemetryStore  = (*AttemptStore)(nil)
	_ sourcing.ProficiencyEcho = (*AttemptStore)(nil)
)
