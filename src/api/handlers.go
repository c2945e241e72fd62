package main

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/Ujj1225/hamroform/src/processor"
	"github.com/getsentry/raven-go"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"
)

var errUploadTooLarge = errors.New("upload too large")

// jobStore is the part of the redis queue the API needs.
type jobStore interface {
	Push(req datastructures.ProcessRequest) error
	Result(uuid string) (*datastructures.ProcessResult, error)
	Ping() error
}

type server struct {
	processor      *processor.Processor
	services       *serviceTable
	jobs           jobStore
	uploadsDir     string
	allowedOrigins []string
	maxUploadBytes int64
}

func newRouter(s *server) *gin.Engine {
	router := gin.Default()
	router.Use(s.cors())

	router.POST("/photo/process", s.processPhoto)
	router.POST("/photo/process/custom", s.processCustomPhoto)
	router.POST("/signature/process", s.processSignature)
	router.POST("/document/process", s.processDocument)
	router.POST("/document/process/custom", s.processCustomDocument)

	router.GET("/health", s.health)
	router.GET("/v1/services", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.services.List())
	})

	router.POST("/v1/jobs", s.submitJob)
	router.GET("/v1/jobs/:uuid", s.jobResult)
	router.GET("/v1/jobs/:uuid/download", s.jobDownload)

	return router
}

func (s *server) cors() gin.HandlerFunc {
	allowed := map[string]bool{}
	for _, origin := range s.allowedOrigins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed["*"] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With, X-PINGOTHER, X-File-Name, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Location, Content-Disposition, X-Size-Limit-Exceeded")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatusJSON(http.StatusOK, struct{}{})
			return
		}
		c.Next()
	}
}

func (s *server) processPhoto(c *gin.Context) {
	svc, ok := s.services.Get(c.PostForm("service_key"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid service selected."})
		return
	}

	raw, _, ok := s.upload(c, "photo")
	if !ok {
		return
	}

	asset, err := s.processor.Photo(c.Request.Context(), raw, svc.PhotoSize[0], svc.PhotoSize[1], svc.PhotoMaxKB)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithAsset(c, datastructures.KindPhoto, asset)
}

func (s *server) processCustomPhoto(c *gin.Context) {
	width, errW := strconv.Atoi(c.PostForm("width"))
	height, errH := strconv.Atoi(c.PostForm("height"))
	if errW != nil || errH != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Width and height are required."})
		return
	}

	raw, _, ok := s.upload(c, "photo")
	if !ok {
		return
	}

	asset, err := s.processor.CustomPhoto(c.Request.Context(), raw, width, height)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithAsset(c, datastructures.KindCustomPhoto, asset)
}

func (s *server) processSignature(c *gin.Context) {
	raw, _, ok := s.upload(c, "signature")
	if !ok {
		return
	}

	asset, err := s.processor.Signature(raw)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithAsset(c, datastructures.KindSignature, asset)
}

func (s *server) processDocument(c *gin.Context) {
	svc, ok := s.services.Get(c.PostForm("service_key"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid service selected."})
		return
	}

	raw, header, ok := s.upload(c, "document")
	if !ok {
		return
	}

	asset, err := s.processor.Document(c.Request.Context(), raw, header.Filename, svc.DocMaxKB)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithAsset(c, datastructures.KindDocument, asset)
}

func (s *server) processCustomDocument(c *gin.Context) {
	maxKB, err := strconv.Atoi(c.PostForm("max_kb"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_kb is required."})
		return
	}

	raw, header, ok := s.upload(c, "document")
	if !ok {
		return
	}

	asset, err := s.processor.CustomDocument(c.Request.Context(), raw, header.Filename, maxKB)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithAsset(c, datastructures.KindCustomDocument, asset)
}

func (s *server) health(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if s.jobs != nil {
		if err := s.jobs.Ping(); err != nil {
			log.Debug("[Health] Redis unreachable: ", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "queue": "unreachable"})
			return
		}
		status["queue"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}

// submitJob queues an upload for the worker. The response carries the
// job id in the Location header; results are polled via GET /v1/jobs/:uuid.
func (s *server) submitJob(c *gin.Context) {
	if s.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Asynchronous processing is not available."})
		return
	}

	req, err := s.jobRequest(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is missing"})
		return
	}
	if header.Size > s.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
		return
	}

	id, err := uuid.NewV4()
	if err != nil {
		log.Debug("[Jobs] Couldn't create uuid: ", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't accept request - please try again later"})
		return
	}

	req.Uuid = id.String()
	req.Filename = filepath.Join(s.uploadsDir, req.Uuid)
	req.OriginalName = header.Filename
	req.Created = time.Now().Unix()

	if err := c.SaveUploadedFile(header, req.Filename); err != nil {
		log.Debug("[Jobs] Couldn't save upload: ", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't accept request - please try again later"})
		return
	}

	if err := s.jobs.Push(req); err != nil {
		log.Debug("[Jobs] Couldn't accept request: ", err.Error())
		raven.CaptureError(err, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't accept request - please try again later"})
		return
	}

	c.Writer.Header().Set("Location", req.Uuid)
	c.JSON(http.StatusAccepted, gin.H{})
}

// jobRequest resolves the form of a job submission into a request with
// concrete sizes and budget.
func (s *server) jobRequest(c *gin.Context) (datastructures.ProcessRequest, error) {
	req := datastructures.ProcessRequest{Kind: datastructures.AssetKind(c.PostForm("kind"))}
	if !req.Kind.Valid() {
		return req, commons.NewInvalidParametersError(fmt.Sprintf("Unknown kind %q.", req.Kind))
	}

	switch req.Kind {
	case datastructures.KindPhoto, datastructures.KindDocument:
		svc, ok := s.services.Get(c.PostForm("service_key"))
		if !ok {
			return req, commons.NewInvalidParametersError("Invalid service selected.")
		}
		if req.Kind == datastructures.KindPhoto {
			req.Width, req.Height, req.MaxKB = svc.PhotoSize[0], svc.PhotoSize[1], svc.PhotoMaxKB
		} else {
			req.MaxKB = svc.DocMaxKB
		}
	case datastructures.KindCustomPhoto:
		width, errW := strconv.Atoi(c.PostForm("width"))
		height, errH := strconv.Atoi(c.PostForm("height"))
		if errW != nil || errH != nil {
			return req, commons.NewInvalidParametersError("Width and height are required.")
		}
		req.Width, req.Height = width, height
	case datastructures.KindCustomDocument:
		maxKB, err := strconv.Atoi(c.PostForm("max_kb"))
		if err != nil {
			return req, commons.NewInvalidParametersError("max_kb is required.")
		}
		req.MaxKB = maxKB
	}
	return req, nil
}

func (s *server) fetchResult(c *gin.Context) (*datastructures.ProcessResult, bool) {
	if s.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Asynchronous processing is not available."})
		return nil, false
	}

	res, err := s.jobs.Result(c.Param("uuid"))
	if err != nil {
		log.Debug("[Jobs] Couldn't get status of request: ", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't get status of request - please try again later"})
		return nil, false
	}
	return res, true
}

func (s *server) jobResult(c *gin.Context) {
	res, ok := s.fetchResult(c)
	if !ok {
		return
	}

	//nothing available yet. Either the uuid is wrong or processing isn't finished.
	if res == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *server) jobDownload(c *gin.Context) {
	res, ok := s.fetchResult(c)
	if !ok {
		return
	}

	if res == nil || res.Asset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No processed file available."})
		return
	}
	respondWithAsset(c, res.Kind, res.Asset)
}

// upload reads a multipart file. On failure a response has been written
// and ok is false.
func (s *server) upload(c *gin.Context, field string) ([]byte, *multipart.FileHeader, bool) {
	raw, header, err := readUpload(c, field, s.maxUploadBytes)
	if err == errUploadTooLarge {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
		return nil, nil, false
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s is missing", field)})
		return nil, nil, false
	}
	return raw, header, true
}

func readUpload(c *gin.Context, field string, limit int64) ([]byte, *multipart.FileHeader, error) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, nil, err
	}
	if int64(len(raw)) > limit {
		return nil, nil, errUploadTooLarge
	}
	return raw, header, nil
}

func respondWithAsset(c *gin.Context, kind datastructures.AssetKind, asset *datastructures.EncodedAsset) {
	c.Writer.Header().Set("Content-Disposition", "attachment; filename="+datastructures.DownloadName(kind, asset))
	if asset.Oversized {
		c.Writer.Header().Set("X-Size-Limit-Exceeded", "true")
	}
	c.Data(http.StatusOK, asset.MediaType, asset.Data)
}

// respondWithError exposes failures the uploader can fix and hides the rest.
func respondWithError(c *gin.Context, err error) {
	var pe *commons.ProcessingError
	if commons.IsUserFacing(err) && errors.As(err, &pe) {
		c.JSON(statusFor(pe.Code), gin.H{
			"error":      pe.Message,
			"error_code": pe.Code,
			"details":    pe.Details,
		})
		return
	}

	log.WithFields(log.Fields{
		"path":  c.FullPath(),
		"error": err.Error(),
	}).Error("[API] Couldn't process request")
	raven.CaptureError(err, map[string]string{"path": c.FullPath()})

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":      "Couldn't process request - please try again later",
		"error_code": commons.CodeOf(err),
	})
}

func statusFor(code commons.ErrorCode) int {
	switch code {
	case commons.CodeInvalidParameters, commons.CodeUnsupportedFormat, commons.CodeUndecodable, commons.CodeImageTooSmall:
		return http.StatusBadRequest
	case commons.CodeNoFaceDetected, commons.CodeLowConfidence, commons.CodeInvalidCrop, commons.CodeEncodingInfeasible:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
