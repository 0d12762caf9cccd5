package core

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestProducerSerializesDeliveries(t *testing.T) {
	p := NewProducer()
	var overlap int32
	var inCallback int32

	cb := func(env *Envelope, userData interface{}) {
		if !atomic.CompareAndSwapInt32(&inCallback, 0, 1) {
			atomic.StoreInt32(&overlap, 1)
		}
		time.Sleep(2 * time.Millisecond)
		atomic.StoreInt32(&inCallback, 0)
	}

	p.Run(func() {
		for i := 0; i < 20; i++ {
			select {
			case <-p.Stopping():
				return
			default:
			}
			go p.Deliver(cb, &Envelope{}, nil)
			time.Sleep(time.Millisecond)
		}
	})
	time.Sleep(60 * time.Millisecond)
	p.Stop()

	if atomic.LoadInt32(&overlap) != 0 {
		t.Fatal("detected overlapping callback invocations")
	}
}

func TestProducerStopWaitsForInFlightCallback(t *testing.T) {
	p := NewProducer()
	done := make(chan struct{})
	started := make(chan struct{})

	p.Run(func() {
		close(started)
		p.Deliver(func(*Envelope, interface{}) {
			time.Sleep(20 * time.Millisecond)
			close(done)
		}, &Envelope{}, nil)
	})

	<-started
	p.Stop()
	select {
	case <-done:
	default:
		t.Fatal("Stop returned before in-flight callback completed")
	}
}
