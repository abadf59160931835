package alert

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mattpat48/se4iot-se4as/pkg/messages"
)

// DefaultWorkers is the number of dispatcher shards when none is configured
const DefaultWorkers = 4

const shardBuffer = 256

// Job is a reading waiting to be evaluated
type Job struct {
	Location string
	Reading  messages.Reading
}

// Dispatcher fans readings out to a fixed set of workers. A sensor always
// lands on the same worker, so its readings are evaluated in arrival order
// while different sensors proceed in parallel.
type Dispatcher struct {
	shards  []chan Job
	process func(context.Context, Job)
}

// NewDispatcher creates a dispatcher with n workers running process
func NewDispatcher(n int, process func(context.Context, Job)) *Dispatcher {
	if n <= 0 {
		n = DefaultWorkers
	}
	d := &Dispatcher{
		shards:  make([]chan Job, n),
		process: process,
	}
	for i := range d.shards {
		d.shards[i] = make(chan Job, shardBuffer)
	}
	return d
}

// Workers returns the number of shards
func (d *Dispatcher) Workers() int {
	return len(d.shards)
}

// shardFor maps a sensor to its worker
func (d *Dispatcher) shardFor(sensorID int) int {
	i := sensorID % len(d.shards)
	if i < 0 {
		i = -i
	}
	return i
}

// Submit queues a job on its sensor's shard, blocking while the shard is full
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	select {
	case d.shards[d.shardFor(job.Reading.SensorID)] <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the workers and blocks until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, shard := range d.shards {
		shard := shard
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return nil
				case job := <-shard:
					d.process(gCtx, job)
				}
			}
		})
	}
	return g.Wait()
}
