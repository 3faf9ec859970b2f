package swarm

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/zjrosen/oompa/internal/log"
)

// Shutdown is the process-wide stop flag workers poll between cycles.
type Shutdown struct {
	flag atomic.Bool
	done chan struct{}
	once sync.Once
}

// NewShutdown returns an untriggered Shutdown.
func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Listen wires SIGINT/SIGTERM to the flag. The returned stop function
// detaches the signal handler.
func (s *Shutdown) Listen() func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-ch
		if !ok {
			return
		}
		log.Info(log.CatSwarm, "termination signal received", "signal", sig.String())
		s.Trigger()
	}()
	return func() {
		signal.Stop(ch)
		close(ch)
	}
}

// Trigger sets the flag. Safe to call more than once.
func (s *Shutdown) Trigger() {
	s.flag.Store(true)
	s.once.Do(func() { close(s.done) })
}

// Requested reports whether shutdown was triggered.
func (s *Shutdown) Requested() bool { return s.flag.Load() }

// Done is closed on the first trigger.
func (s *Shutdown) Done() <-chan struct{} { return s.done }
