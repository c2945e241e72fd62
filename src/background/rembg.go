package background

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/disintegration/imaging"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

// Segmenter cuts the subject out of an image. The returned image carries
// the foreground mask in its alpha channel.
type Segmenter interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

// MattingOptions are forwarded to rembg's alpha matting refinement.
type MattingOptions struct {
	Enabled             bool
	Model               string
	ForegroundThreshold int
	BackgroundThreshold int
	ErodeSize           int
}

func MattingFrom(s commons.MattingSettings) MattingOptions {
	return MattingOptions{
		Enabled:             s.Enabled,
		Model:               s.Model,
		ForegroundThreshold: s.ForegroundThreshold,
		BackgroundThreshold: s.BackgroundThreshold,
		ErodeSize:           s.ErodeSize,
	}
}

// RembgClient talks to a rembg HTTP server ("rembg s").
type RembgClient struct {
	client  *resty.Client
	matting MattingOptions
}

func NewRembgClient(baseURL string, timeout time.Duration, matting MattingOptions) *RembgClient {
	client := resty.New().
		SetHostURL(baseURL).
		SetTimeout(timeout)

	return &RembgClient{client: client, matting: matting}
}

func (c *RembgClient) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, commons.NewSegmentationFailedError(fmt.Errorf("encode request image: %w", err))
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", "portrait.png", &buf).
		SetFormData(c.formData()).
		Post("/api/remove")
	if err != nil {
		log.Debug("[Segmenter] Couldn't reach rembg: ", err.Error())
		return nil, commons.NewSegmentationFailedError(err)
	}

	if !resp.IsSuccess() {
		log.Debug("[Segmenter] rembg responded with status ", resp.StatusCode())
		return nil, commons.NewSegmentationFailedError(fmt.Errorf("rembg failed with status: %d", resp.StatusCode()))
	}

	cutout, err := imaging.Decode(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, commons.NewSegmentationFailedError(fmt.Errorf("decode rembg response: %w", err))
	}

	return cutout, nil
}

// HealthCheck checks that the rembg server is up.
func (c *RembgClient) HealthCheck(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/api")
	if err != nil {
		return err
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("rembg unhealthy: %d", resp.StatusCode())
	}
	return nil
}

func (c *RembgClient) formData() map[string]string {
	form := map[string]string{}
	if c.matting.Model != "" {
		form["model"] = c.matting.Model
	}
	if c.matting.Enabled {
		form["a"] = "true"
		form["af"] = strconv.Itoa(c.matting.ForegroundThreshold)
		form["ab"] = strconv.Itoa(c.matting.BackgroundThreshold)
		form["ae"] = strconv.Itoa(c.matting.ErodeSize)
	}
	return form
}
