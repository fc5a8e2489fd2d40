package timing

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/logger"
)

// Clock formats d as hh:mm:ss. Hours are not wrapped at 24.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Track starts a stopwatch. Calling the returned func logs msg with the
// elapsed time appended to args.
//
//	defer timing.Track("[Worker] Processing time", "queue", name)()
func Track(msg string, args ...any) func() {
	start := time.Now()
	return func() {
		logger.Info(msg, append(args, "duration", Clock(time.Since(start)))...)
	}
}
