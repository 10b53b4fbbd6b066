package supervisor

import (
	"time"

	"go.uber.org/zap"
)

// stage is one ordered step of graceful shutdown: cancel tells the
// stage's worker(s) to stop, done closes once every one of them has
// returned from Run.
type stage struct {
	name   string
	cancel func()
	done   <-chan struct{}
	grace  time.Duration
}

// runShutdown cancels and joins each stage in order, generalizing the
// teacher's CloseAll (internal/webrtc/manager.go): a parallel
// cleanup gated by a WaitGroup and an overall timeout, here applied
// per pipeline stage instead of per connection, in the dependency
// order spec.md §4.8 requires (Input, then VAD/Audio, then Speech
// Workers, then Video, then Output) so that no stage is asked to stop
// while something still feeds it work. A stage that does not join
// within its grace deadline is logged and shutdown proceeds anyway;
// the process exit that follows reclaims anything still running.
func runShutdown(log *zap.SugaredLogger, stages []stage) {
	for _, s := range stages {
		s.cancel()
		select {
		case <-s.done:
			log.Infow("stage stopped", "stage", s.name)
		case <-time.After(s.grace):
			log.Warnw("stage did not stop within grace period, proceeding", "stage", s.name, "grace", s.grace)
		}
	}
}
