package rtdb

import (
	"context"
	"time"
)

// RunHeartbeat periodically stamps the writer heartbeat until ctx is
// cancelled. One goroutine per Writer; the ticker period only bounds
// how often Heartbeat is invoked, Heartbeat itself enforces the
// at-most-once-per-second rule (§4.E).
func (w *Writer) RunHeartbeat(ctx context.Context) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-tick.C:
			w.Heartbeat(t)
		}
	}
}
