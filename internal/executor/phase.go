package executor

import "time"

// One named stage of the build pipeline.
type Phase string

const (
	PhaseResolve   Phase = "Resolve"
	PhaseAnalyze   Phase = "Analyze"
	PhaseProvision Phase = "Provision"
	PhaseExecute   Phase = "Execute"
	PhaseValidate  Phase = "Validate"
	PhasePublish   Phase = "Publish"
)

// Timing and outcome of a single phase.
//
// The executor records one of these per phase entered, regardless of
// outcome, so a result alone reconstructs which phase failed and how long
// each prior phase took.
type PhaseRecord struct {
	Phase   Phase     // Phase name.
	Start   time.Time // When the phase began.
	End     time.Time // When the phase finished.
	Success bool      // Whether the phase completed without error.
	Detail  string    // Error text on failure, empty on success.
}

// Accumulates the linear sequence of phase records for one request.
// The sequence truncates at the failing phase; there are no backward
// transitions.
type phaseLog struct {
	records []PhaseRecord
}

// Runs fn as the named phase, recording start/end timestamps and outcome.
func (l *phaseLog) run(phase Phase, fn func() error) error {
	rec := PhaseRecord{Phase: phase, Start: time.Now()}
	err := fn()
	rec.End = time.Now()
	rec.Success = err == nil
	if err != nil {
		rec.Detail = err.Error()
	}
	l.records = append(l.records, rec)
	return err
}
