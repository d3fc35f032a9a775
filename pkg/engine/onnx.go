package engine

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"

	"detectbench/internal/entity"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	onnxInputName  = "images"
	onnxOutputName = "output0"
)

var envMu sync.Mutex

func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime environment: %w", err)
	}
	return nil
}

// onnxEngine runs a YOLOv8 ONNX export. The dynamic session takes its tensors
// per call, so one session serves concurrent requests.
type onnxEngine struct {
	Renderer
	session    *ort.DynamicAdvancedSession
	size       int
	numAnchors int
	numClasses int
	conf       float32
	iou        float64
}

func newONNXEngine(cfg Config) (Engine, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{onnxInputName},
		[]string{onnxOutputName},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &onnxEngine{
		Renderer:   NewRenderer(COCOLabels),
		session:    session,
		size:       cfg.InputSize,
		numAnchors: anchorCount(cfg.InputSize),
		numClasses: len(COCOLabels),
		conf:       cfg.ConfThreshold,
		iou:        float64(cfg.IoUThreshold),
	}, nil
}

func (e *onnxEngine) Detect(ctx context.Context, img image.Image) ([]entity.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boxed, lb := letterbox(img, e.size)

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(e.size), int64(e.size)))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	defer input.Destroy()
	toCHW(boxed, input.GetData())

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+e.numClasses), int64(e.numAnchors)))
	if err != nil {
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}
	defer output.Destroy()

	if err := e.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	candidates := decodeOutput(output.GetData(), e.numClasses, e.numAnchors, e.conf, lb)
	return nms(candidates, e.iou, MaxDetections), nil
}

func (e *onnxEngine) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}
