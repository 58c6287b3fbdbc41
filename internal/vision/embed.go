package vision

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ArcFaceEmbedder extracts face embeddings using the ArcFace ONNX model.
type ArcFaceEmbedder struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
}

// NewArcFaceEmbedder loads the ArcFace ONNX model for face embedding extraction.
func NewArcFaceEmbedder(modelPath string, opts *ort.SessionOptions) (*ArcFaceEmbedder, error) {
	// ArcFace w600k_r50 expects 112x112 input
	inputW, inputH := 112, 112
	embDim := 512

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(embDim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &ArcFaceEmbedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		embDim:       embDim,
	}, nil
}

// Embed returns an L2-normalized 512-dimensional embedding for a face crop.
func (e *ArcFaceEmbedder) Embed(face image.Image) ([]float32, error) {
	if emptyImage(face) {
		return nil, ErrEmptyImage
	}
	input := imageToFloat32CHW(face, e.inputW, e.inputH,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), input)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	embedding := make([]float32, e.embDim)
	copy(embedding, e.outputTensor.GetData())
	normalize(embedding)
	return embedding, nil
}

func (e *ArcFaceEmbedder) Dim() int {
	return e.embDim
}

func (e *ArcFaceEmbedder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

const (
	histogramSize = 100
	histogramBins = 256
)

// HistogramEmbedder describes a face by its grayscale intensity histogram.
// The histogram is mean-centered and L2-normalized, so cosine similarity between
// two vectors equals their correlation coefficient. It needs no model files.
type HistogramEmbedder struct{}

func NewHistogramEmbedder() HistogramEmbedder {
	return HistogramEmbedder{}
}

func (HistogramEmbedder) Embed(face image.Image) ([]float32, error) {
	if emptyImage(face) {
		return nil, ErrEmptyImage
	}
	resized := resizeImage(face, histogramSize, histogramSize)

	hist := make([]float32, histogramBins)
	for y := 0; y < histogramSize; y++ {
		for x := 0; x < histogramSize; x++ {
			g := color.GrayModel.Convert(resized.RGBAAt(x, y)).(color.Gray)
			hist[g.Y]++
		}
	}

	var mean float32
	for _, v := range hist {
		mean += v
	}
	mean /= histogramBins
	for i := range hist {
		hist[i] -= mean
	}
	normalize(hist)
	return hist, nil
}

func (HistogramEmbedder) Dim() int {
	return histogramBins
}

// normalize performs L2 normalization in-place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
