package service

import "context"

// jobQueueSize bounds how many persistence jobs submit can queue ahead of
// the background worker before falling back to running inline. pkg/bus's
// WebSocketBus.Emit also uses a bounded send queue, but reports an error
// when it is full instead of running the send inline.
const jobQueueSize = 64

// startWorker launches the single goroutine that drains jobs submitted by
// onListenword/onSTTAudio/onRecording, keeping the disk writes those
// callbacks need off VoiceLoop's dispatch goroutine per the contract
// documented in pkg/voiceloop/callbacks.go. A single consumer (not a pool)
// is deliberate: callers rely on submitted jobs running in submission
// order, matching the recorded listenword/wake/stt_audio/record_end/text
// callback sequence.
func (s *Supervisor) startWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	s.jobs = make(chan func(), jobQueueSize)
	s.workerCancel = cancel
	s.workerDone = make(chan struct{})
	go s.runWorker(ctx)
}

func (s *Supervisor) runWorker(ctx context.Context) {
	defer close(s.workerDone)
	for {
		select {
		case fn := <-s.jobs:
			fn()
		case <-ctx.Done():
			for {
				select {
				case fn := <-s.jobs:
					fn()
				default:
					return
				}
			}
		}
	}
}

// submit hands fn to the background worker. If the queue is saturated, fn
// runs inline rather than being dropped; a persisted artifact or bus emit
// missing entirely is worse than one callback stalling under sustained
// backpressure.
func (s *Supervisor) submit(fn func()) {
	select {
	case s.jobs <- fn:
	default:
		fn()
	}
}

// Close stops the background worker, waiting for it to drain whatever is
// already queued. Safe to call once after Run has returned.
func (s *Supervisor) Close() {
	s.workerCancel()
	<-s.workerDone
}
