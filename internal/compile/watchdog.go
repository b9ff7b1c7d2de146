package compile

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// watchdog reports a compilation that runs longer than its interval, once per elapsed
// interval, with a dump of all goroutines. It never cancels the compilation.
type watchdog struct {
	done  chan struct{}
	once  sync.Once
	fired atomic.Int32
}

func startWatchdog(id uuid.UUID, name string, interval time.Duration) *watchdog {
	w := &watchdog{done: make(chan struct{})}
	if interval <= 0 {
		return w
	}
	start := time.Now()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				w.fired.Add(1)
				log.Warningf("compilation %s of %s still running after %s\n%s",
					id, name, time.Since(start).Round(time.Millisecond), stacks())
			}
		}
	}()
	return w
}

func (w *watchdog) stop() {
	w.once.Do(func() { close(w.done) })
}

func stacks() []byte {
	buf := make([]byte, 64<<10)
	return buf[:runtime.Stack(buf, true)]
}
