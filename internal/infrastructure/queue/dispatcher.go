package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/phonebook/contacts-api/internal/core/ports"
	"github.com/phonebook/contacts-api/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	removeTimeout  = 30 * time.Second
)

var _ ports.PhotoCleaner = (*Dispatcher)(nil)

// Dispatcher removes superseded photos from the blob sink in the background.
// Jobs are sharded by owner with consistent hashing so one owner's removals
// run in the order they were queued.
type Dispatcher struct {
	workers []chan ports.PhotoCleanupJob
	sink    ports.BlobSink
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, sink ports.BlobSink, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.PhotoCleanupJob, numWorkers),
		sink:    sink,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.PhotoCleanupJob, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled;
// Wait blocks until they have returned.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker started by Start has exited.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Enqueue hands a job to the worker responsible for its owner. It never
// blocks the request path: when the worker's buffer is full the job is
// dropped and logged, leaving an orphaned file behind.
func (d *Dispatcher) Enqueue(job ports.PhotoCleanupJob) {
	idx := d.shardIndex(job.OwnerID)
	select {
	case d.workers[idx] <- job:
		metrics.PhotoCleanupQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.PhotoCleanupTotal.WithLabelValues("dropped").Inc()
		d.log.Warn().
			Str("owner_id", job.OwnerID).
			Str("url", job.URL).
			Str("reason", job.Reason).
			Int("worker_id", idx).
			Msg("photo cleanup queue full, job dropped")
	}
}

// shardIndex maps an owner id deterministically to a worker index.
func (d *Dispatcher) shardIndex(ownerID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ownerID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.PhotoCleanupJob) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			metrics.PhotoCleanupQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			d.process(ctx, id, job)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, id int, job ports.PhotoCleanupJob) {
	removeCtx, cancel := context.WithTimeout(ctx, removeTimeout)
	defer cancel()

	if err := d.sink.Remove(removeCtx, job.URL); err != nil {
		metrics.PhotoCleanupTotal.WithLabelValues("error").Inc()
		d.log.Error().Err(err).
			Str("owner_id", job.OwnerID).
			Str("url", job.URL).
			Str("reason", job.Reason).
			Int("worker_id", id).
			Msg("photo cleanup failed")
		return
	}
	metrics.PhotoCleanupTotal.WithLabelValues("ok").Inc()
	d.log.Debug().
		Str("owner_id", job.OwnerID).
		Str("url", job.URL).
		Str("reason", job.Reason).
		Msg("photo removed")
}
