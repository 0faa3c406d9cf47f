// Package interrupt is a handler for shutdown signals that runs a list of
// registered handlers, newest first, before the process exits.
package interrupt

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"arbor.lol/log"
)

// HandlerWithSource is an interrupt handling closure and the source location
// that it was sent from.
type HandlerWithSource struct {
	Source string
	Fn     func()
}

var (
	// Chan is used to receive SIGINT (Ctrl+C) signals.
	Chan chan os.Signal
	// Signals is the list of signals that cause the interrupt
	Signals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
	// HandlersDone is closed after all interrupt handlers run the first time an
	// interrupt is signaled.
	HandlersDone = make(chan struct{})

	mx                sync.Mutex
	handlers          []HandlerWithSource
	requested         bool
	listenerStarted   bool
	closeHandlersDone sync.Once
)

// Listener listens for interrupt signals, and when one arrives runs the
// registered handlers and closes HandlersDone.
func Listener() {
	select {
	case sig := <-Chan:
		log.I.F("received interrupt signal %s, shutting down", sig)
	case <-HandlersDone:
		return
	}
	runHandlers()
}

func runHandlers() {
	mx.Lock()
	hs := make([]HandlerWithSource, len(handlers))
	copy(hs, handlers)
	requested = true
	mx.Unlock()
	// run handlers in LIFO order so that later registrations, which usually
	// depend on earlier ones, are torn down first.
	for i := len(hs) - 1; i >= 0; i-- {
		log.T.Ln("running interrupt handler from", hs[i].Source)
		hs[i].Fn()
	}
	closeHandlersDone.Do(func() { close(HandlersDone) })
}

// AddHandler adds a handler to call when a SIGINT (Ctrl+C) is received.
func AddHandler(handler func()) {
	mx.Lock()
	defer mx.Unlock()
	if !listenerStarted {
		listenerStarted = true
		Chan = make(chan os.Signal, 1)
		signal.Notify(Chan, Signals...)
		go Listener()
	}
	handlers = append(handlers, HandlerWithSource{Source: caller(), Fn: handler})
}

// Request programmatically requests a shutdown, running the handlers exactly
// once.
func Request() {
	mx.Lock()
	already := requested
	mx.Unlock()
	if already {
		return
	}
	runHandlers()
}

// Requested returns true if an interrupt has been requested.
func Requested() bool {
	mx.Lock()
	defer mx.Unlock()
	return requested
}
