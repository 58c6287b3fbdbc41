package vision

import (
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/presence/internal/models"
)

// RetinaFaceDetector runs RetinaFace (det_10g) face detection using ONNX Runtime.
type RetinaFaceDetector struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	nmsThreshold  float32
	inputW        int
	inputH        int
}

// stride configuration for RetinaFace det_10g
var strides = []int{8, 16, 32}

// anchorsPerStride is the number of anchors per pixel at each stride
const anchorsPerStride = 2

// rawBox is a decoded detection in x1, y1, x2, y2 pixel coordinates.
type rawBox struct {
	box   [4]float32
	score float32
}

// NewRetinaFaceDetector loads the RetinaFace ONNX model.
// opts may be nil (ORT defaults) or a pre-configured *ort.SessionOptions.
func NewRetinaFaceDetector(modelPath string, threshold, nmsThreshold float32, opts *ort.SessionOptions) (*RetinaFaceDetector, error) {
	inputW, inputH := 640, 640

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// det_10g output shapes (no batch dimension):
	// scores [N,1], bboxes [N,4], landmarks [N,10] for strides 8, 16, 32
	// where N = (640/stride)^2 * 2.
	type outputSpec struct {
		name  string
		shape ort.Shape
	}

	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
		{"454", ort.NewShape(12800, 10)},
		{"477", ort.NewShape(3200, 10)},
		{"500", ort.NewShape(800, 10)},
	}

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))

	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %d (%s): %w", i, spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &RetinaFaceDetector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		nmsThreshold:  nmsThreshold,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect runs face detection on a decoded frame.
func (d *RetinaFaceDetector) Detect(img image.Image) ([]Region, error) {
	if emptyImage(img) {
		return nil, nil
	}
	bounds := img.Bounds()
	input := imageToFloat32CHW(img, d.inputW, d.inputH,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})

	d.mu.Lock()
	copy(d.inputTensor.GetData(), input)
	if err := d.session.Run(); err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("run detection: %w", err)
	}
	raw := d.parseDetections(bounds.Dx(), bounds.Dy())
	d.mu.Unlock()

	raw = nms(raw, d.nmsThreshold)

	regions := make([]Region, 0, len(raw))
	for _, r := range raw {
		rect := image.Rect(
			int(r.box[0]), int(r.box[1]), int(math.Ceil(float64(r.box[2]))), int(math.Ceil(float64(r.box[3]))),
		).Add(bounds.Min)
		box := models.BoxFromRect(rect)
		if box.Empty() {
			continue
		}
		regions = append(regions, Region{Box: box, Confidence: r.score})
	}
	return regions, nil
}

// parseDetections decodes anchor-based RetinaFace outputs at strides 8, 16, 32.
func (d *RetinaFaceDetector) parseDetections(origW, origH int) []rawBox {
	var detections []rawBox

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		bboxes := d.outputTensors[si+3].GetData()

		fmW := d.inputW / stride
		fmH := d.inputH / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					score := scores[idx]
					if score >= d.threshold {
						anchorX := float32(cx) * st
						anchorY := float32(cy) * st

						// Distances from the anchor to each edge, in stride units.
						x1 := clampF((anchorX-bboxes[idx*4+0]*st)*scaleW, 0, float32(origW))
						y1 := clampF((anchorY-bboxes[idx*4+1]*st)*scaleH, 0, float32(origH))
						x2 := clampF((anchorX+bboxes[idx*4+2]*st)*scaleW, 0, float32(origW))
						y2 := clampF((anchorY+bboxes[idx*4+3]*st)*scaleH, 0, float32(origH))

						detections = append(detections, rawBox{
							box:   [4]float32{x1, y1, x2, y2},
							score: score,
						})
					}
					idx++
				}
			}
		}
	}

	return detections
}

func (d *RetinaFaceDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms performs Non-Maximum Suppression on detections.
func nms(detections []rawBox, iouThreshold float32) []rawBox {
	if len(detections) == 0 {
		return detections
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].score > detections[j].score
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(detections); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if !keep[j] {
				continue
			}
			if iou(detections[i].box, detections[j].box) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []rawBox
	for i, d := range detections {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
