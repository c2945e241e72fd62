package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/getsentry/raven-go"
	log "github.com/sirupsen/logrus"
)

// Job holds the attributes needed to perform unit of work.
type Job struct {
	Request datastructures.ProcessRequest
}

type jobProcessor interface {
	Process(ctx context.Context, req datastructures.ProcessRequest, raw []byte) (*datastructures.EncodedAsset, error)
}

type resultStore interface {
	StoreResult(res datastructures.ProcessResult) error
}

// NewWorker creates takes a numeric id and a channel w/ worker pool.
func NewWorker(id int, workerPool chan chan Job, processor jobProcessor, results resultStore, timeout time.Duration) Worker {
	return Worker{
		id:         id,
		jobQueue:   make(chan Job),
		workerPool: workerPool,
		quitChan:   make(chan bool),
		processor:  processor,
		results:    results,
		timeout:    timeout,
	}
}

type Worker struct {
	id         int
	jobQueue   chan Job
	workerPool chan chan Job
	quitChan   chan bool

	processor jobProcessor
	results   resultStore
	timeout   time.Duration
}

func (w Worker) start() {
	log.Debugf("[Worker] Worker %d starting", w.id)

	go func() {
		for {
			// Add my jobQueue to the worker pool.
			w.workerPool <- w.jobQueue

			select {
			case job := <-w.jobQueue:
				w.handle(job)
			case <-w.quitChan:
				log.Debugf("[Worker] Worker %d stopping", w.id)
				return
			}
		}
	}()
}

func (w Worker) stop() {
	go func() {
		w.quitChan <- true
	}()
}

// handle runs one job and stores its outcome. The upload is removed once
// the result is stored; if storing fails it stays on disk for inspection.
func (w Worker) handle(job Job) {
	req := job.Request
	res := datastructures.ProcessResult{Uuid: req.Uuid, Kind: req.Kind}

	asset, err := w.run(req)
	if err != nil {
		res.ErrorCode = string(commons.CodeOf(err))

		var pe *commons.ProcessingError
		if commons.IsUserFacing(err) && errors.As(err, &pe) {
			res.Error = pe.Message
			log.Debugf("[Worker] Job %s rejected: %s", req.Uuid, err.Error())
		} else {
			res.Error = "Couldn't process request - please try again later"
			log.Errorf("[Worker] Couldn't process job %s: %s", req.Uuid, err.Error())
			raven.CaptureError(err, map[string]string{"kind": string(req.Kind)})
		}
	} else {
		res.Asset = asset
	}

	if err := w.results.StoreResult(res); err != nil {
		log.Errorf("[Worker] Couldn't store result of job %s: %s", req.Uuid, err.Error())
		return
	}

	if err := os.Remove(req.Filename); err != nil {
		log.Debugf("[Worker] Couldn't remove file %s", err.Error())
	}
}

func (w Worker) run(req datastructures.ProcessRequest) (*datastructures.EncodedAsset, error) {
	raw, err := os.ReadFile(req.Filename)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	return w.processor.Process(ctx, req, raw)
}

// NewDispatcher creates, and returns a new Dispatcher object.
func NewDispatcher(jobQueue chan Job, maxWorkers int, processor jobProcessor, results resultStore, timeout time.Duration) *Dispatcher {
	workerPool := make(chan chan Job, maxWorkers)

	return &Dispatcher{
		jobQueue:   jobQueue,
		maxWorkers: maxWorkers,
		workerPool: workerPool,
		processor:  processor,
		results:    results,
		timeout:    timeout,
		quit:       make(chan struct{}),
	}
}

type Dispatcher struct {
	workerPool chan chan Job
	maxWorkers int
	jobQueue   chan Job
	workers    []Worker

	processor jobProcessor
	results   resultStore
	timeout   time.Duration
	quit      chan struct{}
}

func (d *Dispatcher) run() {
	for i := 0; i < d.maxWorkers; i++ {
		worker := NewWorker(i+1, d.workerPool, d.processor, d.results, d.timeout)
		worker.start()
		d.workers = append(d.workers, worker)
	}

	go d.dispatch()
}

func (d *Dispatcher) stop() {
	close(d.quit)
	for _, worker := range d.workers {
		worker.stop()
	}
}

func (d *Dispatcher) dispatch() {
	for {
		select {
		case job := <-d.jobQueue:
			go func() {
				workerJobQueue := <-d.workerPool
				workerJobQueue <- job
			}()
		case <-d.quit:
			return
		}
	}
}
