package chat

// Progression constants: each qualifying message adds PointsPerMessage and the
// level-up threshold grows with the level.
const (
	PointsPerMessage   = 5
	LevelThresholdStep = 100
)

// Progression is the points/level ledger for one identity. Points only ever
// accrue; the caller guarantees at-most-once invocation per message.
type Progression struct {
	Username string `db:"username"`
	Points   int    `db:"points"`
	Level    int    `db:"level"`
}

// RecordActivity adds one message's worth of points and reports whether the
// identity crossed into a new level.
func (p *Progression) RecordActivity() bool {
	if p.Level < 1 {
		p.Level = 1
	}
	p.Points += PointsPerMessage
	if p.Points >= p.Level*LevelThresholdStep {
		p.Level++
		return true
	}
	return false
}
