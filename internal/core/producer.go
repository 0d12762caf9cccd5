package core

import "sync"

// Producer is the reusable half of the Producer Engine contract every
// backend implements its own variant of (§4.4): it owns the stop signal, a
// callback-serialization lock that guarantees no two deliveries for the
// same Context ever overlap, and the done-signal stop waits on so that
// StopCapture never returns before an in-flight callback has.
//
// A backend's acquisition loop runs inside Run's goroutine and calls
// Deliver for every frame it produces; it must select on Stop's channel
// (returned by Stopping) to know when to tear down and stop enqueuing new
// acquisition requests.
type Producer struct {
	stopCh  chan struct{}
	doneCh  chan struct{}
	startWg sync.WaitGroup
	callMu  sync.Mutex
	once    sync.Once
}

// NewProducer allocates a Producer ready for Run.
func NewProducer() *Producer {
	return &Producer{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Stopping returns the channel a backend's acquisition loop selects on to
// detect a stop request.
func (p *Producer) Stopping() <-chan struct{} { return p.stopCh }

// Run starts loop on a dedicated goroutine. loop must return promptly once
// Stopping's channel closes; Run's goroutine closes doneCh when loop
// returns, which is what Stop waits on.
func (p *Producer) Run(loop func()) {
	p.startWg.Add(1)
	go func() {
		defer close(p.doneCh)
		p.startWg.Done()
		loop()
	}()
	p.startWg.Wait() // ensure the goroutine has started before Run returns
}

// Deliver invokes cb with env, serialized against any other Deliver call
// on this Producer. This is what makes §8 property 4 (serialization per
// context) hold regardless of which thread/goroutine a backend's loop runs
// on.
func (p *Producer) Deliver(cb Callback, env *Envelope, userData interface{}) {
	if cb == nil {
		return
	}
	p.callMu.Lock()
	defer p.callMu.Unlock()
	cb(env, userData)
}

// Stop signals the acquisition loop to halt and blocks until it has
// exited and any in-flight Deliver has returned. Safe to call multiple
// times; only the first has effect.
func (p *Producer) Stop() {
	p.once.Do(func() {
		close(p.stopCh)
	})
	<-p.doneCh
	// Acquire and release the call lock once more so Stop cannot return
	// while a Deliver call that raced the stop signal is still in flight.
	p.callMu.Lock()
	p.callMu.Unlock()
}
