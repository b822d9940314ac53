package supervisor

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Forwarder is C11: it relays every deliverable signal this process
// receives to the root child's process group, and stops doing so once
// closed. spec.md §4.11 excludes SIGKILL (which no process can catch
// anyway) and SIGCHLD (which the supervisor needs for its own
// Wait/Wait4 bookkeeping, not forwarding).
//
// The original C++ implementation installs a libc `signal()` handler
// directly and keeps a fixed-size array of previous handlers to restore
// on destruction (source/libsys/source/Signal.cc). Go has no equivalent
// of re-entering a raw signal handler from user code; the idiomatic Go
// translation is signal.Notify into a channel plus a relay goroutine,
// with signal.Stop as the "restore previous handlers" step. The relay
// goroutine itself does no allocation on the signal path beyond the
// channel send the runtime already performs.
type Forwarder struct {
	pid   int
	sigCh chan os.Signal
	done  chan struct{}
}

// excludedSignals are never forwarded to the child.
var excludedSignals = map[os.Signal]bool{
	unix.SIGCHLD: true,
}

// NewForwarder installs the relay and starts forwarding immediately.
func NewForwarder(pid int) *Forwarder {
	f := &Forwarder{
		pid:   pid,
		sigCh: make(chan os.Signal, 16),
		done:  make(chan struct{}),
	}
	signal.Notify(f.sigCh)
	go f.loop()
	return f
}

func (f *Forwarder) loop() {
	for {
		select {
		case sig := <-f.sigCh:
			if excludedSignals[sig] {
				continue
			}
			f.relay(sig)
		case <-f.done:
			return
		}
	}
}

// relay sends sig to the child's entire process group so that signals
// like SIGINT (normally delivered to a whole foreground process group by
// the terminal driver already) reach grandchildren too, matching
// spec.md's intent that the root child and its descendants observe the
// same signal the supervisor did.
func (f *Forwarder) relay(sig os.Signal) {
	number, ok := sig.(unix.Signal)
	if !ok {
		return
	}

	if pgid, err := unix.Getpgid(f.pid); err == nil {
		_ = unix.Kill(-pgid, number)
		return
	}
	_ = unix.Kill(f.pid, number)
}

// Close stops forwarding and releases the underlying notification
// channel, the Go equivalent of restoring the previous signal handlers.
func (f *Forwarder) Close() {
	signal.Stop(f.sigCh)
	close(f.done)
}
