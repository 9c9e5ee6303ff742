package metamodel

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SnapshotExtension is appended to filenames when snapshots are written.
const SnapshotExtension = ".json"

const filenameDateLayout = "20060102"

// Clock supplies "now". It is injected so that filenames and creation dates are testable.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// ComputeName derives "<base>_<YYYYMMDD>_<counter>" from its inputs. It is a pure function.
func ComputeName(base string, date time.Time, counter int) string {
	return fmt.Sprintf("%s_%s_%d", base, date.Format(filenameDateLayout), counter)
}

// ModelBaseName returns the model source's file name without directory and extension.
func ModelBaseName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FilenamePolicy hands out artifact names for one MetaModel.
//
// The date is taken from the clock at the time of each call, not from the model's creation.
// The counter increases once per call, which keeps names unique for snapshots taken on the
// same day. Nothing beyond the counter prevents collisions.
type FilenamePolicy struct {
	clock   Clock
	counter int
}

// NewFilenamePolicy creates a policy whose next name uses counter start.
func NewFilenamePolicy(clock Clock, start int) *FilenamePolicy {
	if clock == nil {
		clock = SystemClock()
	}

	return &FilenamePolicy{clock: clock, counter: start}
}

// Next returns the name for source with the current counter and advances the counter.
func (p *FilenamePolicy) Next(source string) string {
	name := ComputeName(ModelBaseName(source), p.clock.Now(), p.counter)
	p.counter++

	return name
}

// Counter returns the counter the next name will use.
func (p *FilenamePolicy) Counter() int {
	return p.counter
}
