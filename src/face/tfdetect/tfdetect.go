// Package tfdetect runs a frozen TensorFlow SSD face detection graph.
package tfdetect

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/Ujj1225/hamroform/src/face"
	log "github.com/sirupsen/logrus"
	tf "github.com/tensorflow/tensorflow/tensorflow/go"
)

// Default op names of graphs exported with the TF object detection API.
const (
	defaultInputOp  = "image_tensor"
	defaultBoxesOp  = "detection_boxes"
	defaultScoresOp = "detection_scores"
	defaultCountOp  = "num_detections"
)

type TensorflowDetector struct {
	graph     *tf.Graph
	session   *tf.Session
	modelInfo datastructures.ModelInfo
}

func NewTensorflowDetector() *TensorflowDetector {
	return &TensorflowDetector{}
}

// Load reads model_info.json and graph.pb from modelDir and opens a session.
func (p *TensorflowDetector) Load(modelDir string) error {
	modelInfoFile, err := os.ReadFile(filepath.Join(modelDir, "model_info.json"))
	if err != nil {
		log.Debug("[Face Detector] Couldn't read model info: ", err.Error())
		return err
	}

	var modelInfo datastructures.ModelInfo
	err = json.Unmarshal(modelInfoFile, &modelInfo)
	if err != nil {
		log.Debug("[Face Detector] Couldn't parse model info: ", err.Error())
		return err
	}
	p.modelInfo = withDefaultOps(modelInfo)

	model, err := os.ReadFile(filepath.Join(modelDir, "graph.pb"))
	if err != nil {
		log.Debug("[Face Detector] Couldn't read model: ", err.Error())
		return err
	}

	p.graph = tf.NewGraph()
	if err := p.graph.Import(model, ""); err != nil {
		log.Debug("[Face Detector] Couldn't construct graph: ", err.Error())
		return err
	}

	for _, op := range []string{p.modelInfo.InputOp, p.modelInfo.BoxesOp, p.modelInfo.ScoresOp, p.modelInfo.CountOp} {
		if p.graph.Operation(op) == nil {
			return fmt.Errorf("graph has no operation %q", op)
		}
	}

	p.session, err = tf.NewSession(p.graph, nil)
	if err != nil {
		log.Debug("[Face Detector] Couldn't start session: ", err.Error())
		return err
	}

	log.WithFields(log.Fields{
		"build":      p.modelInfo.Build,
		"based_on":   p.modelInfo.BasedOn,
		"trained_on": p.modelInfo.TrainedOn,
	}).Info("[Face Detector] Loaded model")

	return nil
}

func (p *TensorflowDetector) ModelInfo() datastructures.ModelInfo {
	return p.modelInfo
}

// Detect runs the graph on img. Sessions may be run concurrently, so a
// single loaded detector can be shared by all workers.
func (p *TensorflowDetector) Detect(img image.Image) ([]face.Detection, error) {
	tensor, err := makeTensorFromImage(img)
	if err != nil {
		log.Debug("[Face Detector] Couldn't create tensor from image: ", err.Error())
		return nil, err
	}

	output, err := p.session.Run(
		map[tf.Output]*tf.Tensor{
			p.graph.Operation(p.modelInfo.InputOp).Output(0): tensor,
		},
		[]tf.Output{
			p.graph.Operation(p.modelInfo.BoxesOp).Output(0),
			p.graph.Operation(p.modelInfo.ScoresOp).Output(0),
			p.graph.Operation(p.modelInfo.CountOp).Output(0),
		},
		nil)
	if err != nil {
		log.Debug("[Face Detector] Couldn't run face detection: ", err.Error())
		return nil, err
	}

	boxes, ok := output[0].Value().([][][]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected boxes output of type %T", output[0].Value())
	}
	scores, ok := output[1].Value().([][]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected scores output of type %T", output[1].Value())
	}
	counts, ok := output[2].Value().([]float32)
	if !ok || len(counts) == 0 {
		return nil, fmt.Errorf("unexpected count output of type %T", output[2].Value())
	}

	return toDetections(boxes[0], scores[0], int(counts[0])), nil
}

func (p *TensorflowDetector) Close() {
	if p.session != nil {
		p.session.Close()
	}
}

// toDetections converts the (ymin, xmin, ymax, xmax) rows the graph emits.
func toDetections(boxes [][]float32, scores []float32, count int) []face.Detection {
	count = min(count, len(boxes), len(scores))

	detections := make([]face.Detection, 0, count)
	for i := 0; i < count; i++ {
		if len(boxes[i]) < 4 {
			continue
		}
		detections = append(detections, face.Detection{
			Confidence: float64(scores[i]),
			Box: face.RelativeBox{
				YMin: float64(boxes[i][0]),
				XMin: float64(boxes[i][1]),
				YMax: float64(boxes[i][2]),
				XMax: float64(boxes[i][3]),
			},
		})
	}
	return detections
}

func withDefaultOps(info datastructures.ModelInfo) datastructures.ModelInfo {
	if info.InputOp == "" {
		info.InputOp = defaultInputOp
	}
	if info.BoxesOp == "" {
		info.BoxesOp = defaultBoxesOp
	}
	if info.ScoresOp == "" {
		info.ScoresOp = defaultScoresOp
	}
	if info.CountOp == "" {
		info.CountOp = defaultCountOp
	}
	return info
}

// makeTensorFromImage turns the already resized detector input into a
// [1][H][W][3] uint8 batch, the layout image_tensor expects.
func makeTensorFromImage(img image.Image) (*tf.Tensor, error) {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	if h == 0 || w == 0 {
		return nil, fmt.Errorf("input image is empty")
	}

	pixels := make([][][]uint8, h)
	for y := 0; y < h; y++ {
		row := make([][]uint8, w)
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(x+b.Min.X, y+b.Min.Y).RGBA()
			row[x] = []uint8{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8)}
		}
		pixels[y] = row
	}
	return tf.NewTensor([][][][]uint8{pixels})
}
