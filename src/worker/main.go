package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/Ujj1225/hamroform/src/models"
	"github.com/Ujj1225/hamroform/src/processor"
	"github.com/Ujj1225/hamroform/src/queue"
	"github.com/getsentry/raven-go"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type jobSource interface {
	Pop() (*datastructures.ProcessRequest, error)
}

// poll moves requests from the redis queue into jobQueue until quit is
// closed. An empty or unreachable queue is retried after interval.
func poll(source jobSource, jobQueue chan<- Job, interval time.Duration, quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		default:
		}

		req, err := source.Pop()
		if err != nil {
			log.Debug("[Main] Couldn't get request: ", err.Error())
		}
		if req == nil {
			//nothing in queue (or redis is down), sleep a bit
			select {
			case <-quit:
				return
			case <-time.After(interval):
			}
			continue
		}

		log.Debug("[Main] Got a new request to process")
		if !req.Kind.Valid() {
			log.Debug("[Main] Invalid kind: ", req.Kind)
			continue
		}
		select {
		case jobQueue <- Job{Request: *req}:
		case <-quit:
			log.Warn("[Main] Shutting down with request ", req.Uuid, " still pending")
			return
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("[Main] No .env file found, using the environment")
	}

	log.Debug("[Main] Starting Worker...")
	logLevel := flag.String("log-level", commons.GetEnv("HAMROFORM_LOG_LEVEL", "debug"), "Log level")
	redisAddress := flag.String("redis-address", commons.GetEnv("REDIS_ADDRESS", ":6379"), "Address to the Redis server")
	redisMaxConnections := flag.Int("redis-max-connections", commons.GetEnvInt("REDIS_MAX_CONNECTIONS", 10), "Max connections to Redis")
	queueName := flag.String("queue", commons.GetEnv("HAMROFORM_QUEUE", queue.DefaultName), "Name of the job queue")
	maxWorkerQueueSize := flag.Int("max-worker-queue-size", 100, "The size of job queue")
	maxWorkers := flag.Int("max-workers", commons.GetEnvInt("HAMROFORM_MAX_WORKERS", 4), "The number of workers to start")
	pollInterval := flag.Duration("poll-interval", time.Second, "How long to wait if the queue is empty")
	jobTimeout := flag.Duration("job-timeout", commons.GetEnvDuration("HAMROFORM_JOB_TIMEOUT", 2*time.Minute), "Max processing time of a single job")
	settingsPath := flag.String("settings", commons.GetEnv("HAMROFORM_SETTINGS", "../config/settings.yaml"), "Path to the settings file")
	sentryDsn := flag.String("sentry-dsn", commons.GetEnv("SENTRY_DSN", ""), "Sentry DSN, errors aren't reported if empty")
	modelDir := flag.String("model-dir", commons.GetEnv("HAMROFORM_MODEL_DIR", ""), "Directory with the TensorFlow face detection graph")
	cascadePath := flag.String("cascade", commons.GetEnv("HAMROFORM_CASCADE", "../models/facefinder"), "pigo cascade, used if no model dir is given")
	rembgURL := flag.String("rembg-url", commons.GetEnv("REMBG_URL", "http://127.0.0.1:7000"), "Address of the rembg server")
	rembgTimeout := flag.Duration("rembg-timeout", commons.GetEnvDuration("REMBG_TIMEOUT", time.Minute), "Timeout of background removal")

	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal("[Main] Invalid log level: ", err.Error())
	}
	log.SetLevel(level)

	if *sentryDsn != "" {
		if err := raven.SetDSN(*sentryDsn); err != nil {
			log.Fatal("[Main] Couldn't set sentry DSN: ", err.Error())
		}
	}

	settings, err := commons.LoadSettings(*settingsPath)
	if err != nil {
		log.Fatal("[Main] Couldn't load settings: ", err.Error())
	}

	//detectors are safe for concurrent use, so all workers share one
	loaded, closeModels, err := models.Load(models.Config{
		ModelDir:     *modelDir,
		CascadePath:  *cascadePath,
		RembgURL:     *rembgURL,
		RembgTimeout: *rembgTimeout,
		Matting:      settings.Matting,
	})
	if err != nil {
		log.Fatal("[Main] Couldn't load models: ", err.Error())
	}
	defer closeModels()

	redisPool := queue.NewPool(*redisAddress, *redisMaxConnections)
	defer redisPool.Close()
	jobs := queue.New(redisPool, *queueName)

	log.Debug("[Main] Starting Dispatcher...")
	jobQueue := make(chan Job, *maxWorkerQueueSize)
	dispatcher := NewDispatcher(jobQueue, *maxWorkers, processor.New(settings, loaded), jobs, *jobTimeout)
	dispatcher.run()

	quit := make(chan struct{})
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		<-signals
		log.Info("[Main] Shutting down")
		close(quit)
	}()

	poll(jobs, jobQueue, *pollInterval, quit)
	dispatcher.stop()
}
