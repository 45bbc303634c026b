package pump

import "time"

// queue is an unbounded FIFO of day/tick markers between the controller and
// one region worker. Pushes never block the controller; closing the inlet is
// the stop sentinel — buffered markers are still drained to the worker, then
// the outlet closes. When stop fires the queue abandons buffered markers and
// closes the outlet, so a worker that already exited on cancellation does not
// strand the drain.
type queue struct {
	in   chan time.Time
	out  chan time.Time
	stop <-chan struct{}
}

func newQueue(stop <-chan struct{}) *queue {
	q := &queue{
		in:   make(chan time.Time),
		out:  make(chan time.Time),
		stop: stop,
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.out)

	var buf []time.Time
	for {
		if len(buf) == 0 {
			select {
			case v, ok := <-q.in:
				if !ok {
					return
				}
				buf = append(buf, v)
			case <-q.stop:
				return
			}
		}

		select {
		case v, ok := <-q.in:
			if !ok {
				for _, v := range buf {
					select {
					case q.out <- v:
					case <-q.stop:
						return
					}
				}
				return
			}
			buf = append(buf, v)
		case q.out <- buf[0]:
			buf = buf[1:]
		case <-q.stop:
			return
		}
	}
}

func (q *queue) push(v time.Time) {
	select {
	case q.in <- v:
	case <-q.stop:
	}
}

func (q *queue) close() { close(q.in) }
