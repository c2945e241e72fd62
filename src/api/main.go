package main

import (
	"flag"
	"os"
	"time"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/models"
	"github.com/Ujj1225/hamroform/src/processor"
	"github.com/Ujj1225/hamroform/src/queue"
	"github.com/getsentry/raven-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("[Main] No .env file found, using the environment")
	}

	releaseMode := flag.Bool("release", commons.GetEnvBool("HAMROFORM_RELEASE", false), "Run in release mode")
	listen := flag.String("listen", commons.GetEnv("HAMROFORM_LISTEN", ":8081"), "Address to listen on")
	logLevel := flag.String("log-level", commons.GetEnv("HAMROFORM_LOG_LEVEL", "debug"), "Log level")
	settingsPath := flag.String("settings", commons.GetEnv("HAMROFORM_SETTINGS", "../config/settings.yaml"), "Path to the settings file")
	sentryDsn := flag.String("sentry-dsn", commons.GetEnv("SENTRY_DSN", ""), "Sentry DSN, errors aren't reported if empty")
	allowedOrigins := flag.String("allowed-origins", commons.GetEnv("HAMROFORM_ALLOWED_ORIGINS", "https://hamroform.com,https://www.hamroform.com,http://localhost:5173,http://127.0.0.1:5173"), "Comma separated list of CORS origins")
	maxUploadMB := flag.Int("max-upload-mb", commons.GetEnvInt("HAMROFORM_MAX_UPLOAD_MB", 20), "Max size of an upload in MB")

	modelDir := flag.String("model-dir", commons.GetEnv("HAMROFORM_MODEL_DIR", ""), "Directory with the TensorFlow face detection graph")
	cascadePath := flag.String("cascade", commons.GetEnv("HAMROFORM_CASCADE", "../models/facefinder"), "pigo cascade, used if no model dir is given")
	rembgURL := flag.String("rembg-url", commons.GetEnv("REMBG_URL", "http://127.0.0.1:7000"), "Address of the rembg server")
	rembgTimeout := flag.Duration("rembg-timeout", commons.GetEnvDuration("REMBG_TIMEOUT", time.Minute), "Timeout of background removal")

	useQueue := flag.Bool("use-queue", commons.GetEnvBool("HAMROFORM_USE_QUEUE", true), "Accept asynchronous jobs via redis")
	redisAddress := flag.String("redis-address", commons.GetEnv("REDIS_ADDRESS", ":6379"), "Address to the Redis server")
	redisMaxConnections := flag.Int("redis-max-connections", commons.GetEnvInt("REDIS_MAX_CONNECTIONS", 50), "Max connections to Redis")
	queueName := flag.String("queue", commons.GetEnv("HAMROFORM_QUEUE", queue.DefaultName), "Name of the job queue")
	uploadsDir := flag.String("uploads-dir", commons.GetEnv("HAMROFORM_UPLOADS_DIR", "../uploads/"), "Location of the temporarily saved uploads")

	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal("[Main] Invalid log level: ", err.Error())
	}
	log.SetLevel(level)

	if *releaseMode {
		log.Info("[Main] Starting gin in release mode!")
		gin.SetMode(gin.ReleaseMode)
	}

	if *sentryDsn != "" {
		if err := raven.SetDSN(*sentryDsn); err != nil {
			log.Fatal("[Main] Couldn't set sentry DSN: ", err.Error())
		}
	}

	settings, err := commons.LoadSettings(*settingsPath)
	if err != nil {
		log.Fatal("[Main] Couldn't load settings: ", err.Error())
	}
	services := newServiceTable(settings.Services)

	if *settingsPath != "" {
		watcher, err := commons.WatchSettings(*settingsPath, func(s *commons.Settings) {
			services.Set(s.Services)
		})
		if err != nil {
			log.Warn("[Main] Couldn't watch settings, agency table won't be reloaded: ", err.Error())
		} else {
			defer watcher.Close()
		}
	}

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

	s := &server{
		processor:      processor.New(settings, loaded),
		services:       services,
		uploadsDir:     *uploadsDir,
		allowedOrigins: commons.SplitList(*allowedOrigins),
		maxUploadBytes: int64(*maxUploadMB) << 20,
	}

	if *useQueue {
		//uploads are temporary, so the directory might not exist (e.g. if they are stored in /tmp and the server reboots)
		if _, err := os.Stat(*uploadsDir); os.IsNotExist(err) {
			log.Debug("[Main] Creating directory for uploads as it doesn't exist")
			if err := os.MkdirAll(*uploadsDir, 0755); err != nil {
				log.Fatal("[Main] Couldn't create directory: ", err.Error())
			}
		}

		redisPool := queue.NewPool(*redisAddress, *redisMaxConnections)
		defer redisPool.Close()
		s.jobs = queue.New(redisPool, *queueName)
	}

	log.Info("[Main] Listening on ", *listen)
	if err := newRouter(s).Run(*listen); err != nil {
		log.Error("[Main] Server stopped: ", err.Error())
	}
}
