package detectionService

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"detectbench/internal/api/detection"
	"detectbench/internal/entity"
	"detectbench/pkg/engine"
	"detectbench/pkg/redis"
	"detectbench/pkg/storage"
	"detectbench/pkg/timing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	boxes    []entity.Box
	rendered [][]entity.Box
	mu       sync.Mutex
}

func (f *fakeEngine) Detect(context.Context, image.Image) ([]entity.Box, error) {
	return append([]entity.Box(nil), f.boxes...), nil
}

func (f *fakeEngine) Render(img image.Image, boxes []entity.Box) (image.Image, error) {
	f.mu.Lock()
	f.rendered = append(f.rendered, boxes)
	f.mu.Unlock()
	return engine.NewRenderer(engine.COCOLabels).Render(img, boxes)
}

func (f *fakeEngine) Close() error { return nil }

type fakeProvider struct {
	eng   engine.Engine
	err   error
	calls atomic.Int32
}

func (p *fakeProvider) Get(context.Context) (engine.Engine, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.eng, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []redis.TimingEntry
}

func (h *fakeHistory) PushTiming(_ context.Context, e redis.TimingEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func (h *fakeHistory) RecentTimings(context.Context, string, int) ([]redis.TimingEntry, error) {
	return nil, nil
}

func (h *fakeHistory) Summary(_ context.Context, s string) (redis.TimingSummary, error) {
	return redis.TimingSummary{Strategy: s}, nil
}

func (h *fakeHistory) Close() error { return nil }

type fakeMirror struct {
	mu       sync.Mutex
	uploaded []string
}

func (m *fakeMirror) Enabled() bool { return true }

func (m *fakeMirror) Upload(_ context.Context, localPath, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaded = append(m.uploaded, localPath)
	return "s3://bench/" + filepath.Base(localPath), nil
}

var sampleBoxes = []entity.Box{
	{X1: 10, Y1: 10, X2: 60, Y2: 80, Cls: 0, Conf: 0.91},
	{X1: 70, Y1: 20, X2: 110, Y2: 50, Cls: 2, Conf: 0.55},
}

type fixture struct {
	svc      IDetectionService
	provider *fakeProvider
	engine   *fakeEngine
	history  *fakeHistory
	mirror   *fakeMirror
	layout   *storage.Layout
	root     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	layout, err := storage.NewLayout(root, "static/uploads", "static/result")
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	eng := &fakeEngine{boxes: sampleBoxes}
	f := &fixture{
		provider: &fakeProvider{eng: eng},
		engine:   eng,
		history:  &fakeHistory{},
		mirror:   &fakeMirror{},
		layout:   layout,
		root:     root,
	}
	f.svc = NewDetectionService(log, f.provider, layout, f.mirror, f.history)
	return f
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["file"][0]
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 40, G: 90, B: 160, A: 255}), imaging.PNG))
	return buf.Bytes()
}

func (f *fixture) run(t *testing.T, name string, strategy entity.Strategy, lb *entity.Letterbox) (interface{}, *timing.Recorder, error) {
	t.Helper()
	ctx := context.Background()
	rec := timing.NewRecorder()

	req, err := f.svc.Receive(ctx, Upload{
		File:      fileHeader(t, name, pngBytes(t, 128, 96)),
		Filename:  name,
		Strategy:  strategy,
		Letterbox: lb,
	}, rec)
	require.NoError(t, err)

	result, err := f.svc.Dispatch(ctx, req, rec)
	if err != nil {
		return nil, rec, err
	}
	payload, err := f.svc.Assemble(ctx, result, rec)
	return payload, rec, err
}

func TestStrategyCNeverTouchesEngine(t *testing.T) {
	f := newFixture(t)

	payload, rec, err := f.run(t, "street.png", entity.StrategyC, nil)
	require.NoError(t, err)

	assert.Equal(t, detection.NoOpResponse{Strategy: "C", Msg: "client-side-only, no server inference"}, payload)
	assert.Equal(t, int32(0), f.provider.calls.Load())
	assert.True(t, rec.Phases().Has(timing.PhaseRecvPre))
	assert.False(t, rec.Phases().Has(timing.PhaseInfer))
	assert.FileExists(t, filepath.Join(f.root, "static", "uploads", "street.png"))

	f.svc.Close()
	assert.Empty(t, f.history.entries)
}

func TestStrategyAWritesDeterministicArtifact(t *testing.T) {
	f := newFixture(t)

	payload, rec, err := f.run(t, "street.png", entity.StrategyA, nil)
	require.NoError(t, err)

	resp, ok := payload.(detection.RenderedResponse)
	require.True(t, ok)
	assert.Equal(t, "A", resp.Strategy)
	assert.Equal(t, "static/uploads/street.png", resp.Original)
	assert.Equal(t, "static/result/detected_street.jpg", resp.Detected)
	assert.GreaterOrEqual(t, resp.Timings.ServerInfer, 0.0)

	artifact := filepath.Join(f.root, "static", "result", "detected_street.jpg")
	first, err := os.Stat(artifact)
	require.NoError(t, err)

	assert.Equal(t, []timing.Phase{timing.PhaseRecvPre, timing.PhaseLoad, timing.PhaseInfer, timing.PhasePost}, rec.Phases().Order())
	assert.Equal(t, timing.Phase(""), rec.Open())
	phases := rec.Phases()
	assert.GreaterOrEqual(t, phases.Get(timing.PhasePost), phases.Sub(timing.SubRender)+phases.Sub(timing.SubEncode))

	_, _, err = f.run(t, "street.png", entity.StrategyA, nil)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(f.root, "static", "result"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	second, err := os.Stat(artifact)
	require.NoError(t, err)
	assert.Equal(t, first.Name(), second.Name())

	f.svc.Close()
	assert.Len(t, f.history.entries, 2)
	assert.Equal(t, "A", f.history.entries[0].Strategy)
	assert.Len(t, f.mirror.uploaded, 2)
}

func TestStrategyBReturnsBoxes(t *testing.T) {
	f := newFixture(t)

	payload, _, err := f.run(t, "street.png", entity.StrategyB, nil)
	require.NoError(t, err)

	resp, ok := payload.(detection.BoxListResponse)
	require.True(t, ok)
	assert.Equal(t, "B", resp.Strategy)
	assert.Equal(t, "static/uploads/street.png", resp.Original)
	require.Len(t, resp.Boxes, len(sampleBoxes))
	for i, b := range resp.Boxes {
		assert.Equal(t, sampleBoxes[i].Cls, b.Cls)
		assert.Equal(t, sampleBoxes[i].Conf, b.Conf)
	}
	assert.NoFileExists(t, filepath.Join(f.root, "static", "result", "detected_street.jpg"))

	f.svc.Close()
	assert.Empty(t, f.mirror.uploaded)
}

func TestStrategiesAAndBShareDetections(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.run(t, "a.png", entity.StrategyA, nil)
	require.NoError(t, err)
	payload, _, err := f.run(t, "b.png", entity.StrategyB, nil)
	require.NoError(t, err)

	require.Len(t, f.engine.rendered, 1)
	assert.Equal(t, f.engine.rendered[0], payload.(detection.BoxListResponse).Boxes)
}

func TestStrategyBAppliesLetterbox(t *testing.T) {
	f := newFixture(t)
	lb := &entity.Letterbox{Ratio: 0.5, PadX: 0, PadY: 8, OrigW: 256, OrigH: 176}

	payload, _, err := f.run(t, "street.png", entity.StrategyB, lb)
	require.NoError(t, err)

	boxes := payload.(detection.BoxListResponse).Boxes
	assert.InDelta(t, 20, boxes[0].X1, 1e-9)
	assert.InDelta(t, 4, boxes[0].Y1, 1e-9)
	assert.InDelta(t, 120, boxes[0].X2, 1e-9)
	assert.InDelta(t, 144, boxes[0].Y2, 1e-9)
}

func TestEngineLoadFailureIsSurfacedEachTime(t *testing.T) {
	f := newFixture(t)
	f.provider.err = &engine.LoadError{Backend: engine.BackendONNX, Cause: engine.ErrModelNotFound}

	for i := 0; i < 2; i++ {
		_, _, err := f.run(t, "street.png", entity.StrategyA, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, detection.ErrEngineUnavailable)
		var loadErr *engine.LoadError
		assert.True(t, errors.As(err, &loadErr))
	}
	assert.Equal(t, int32(2), f.provider.calls.Load())
}

func TestDispatchUnknownStrategy(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Dispatch(context.Background(), entity.DetectionRequest{Strategy: entity.StrategyUnknown}, timing.NewRecorder())

	assert.ErrorIs(t, err, detection.ErrUnknownStrategy)
	assert.Equal(t, int32(0), f.provider.calls.Load())
}

func TestReceiveRejectsUndecodableImage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Receive(context.Background(), Upload{
		File:     fileHeader(t, "broken.jpg", []byte("definitely not a jpeg")),
		Filename: "broken.jpg",
		Strategy: entity.StrategyA,
	}, timing.NewRecorder())

	assert.ErrorIs(t, err, detection.ErrInvalidImage)
}

func TestBackgroundWorkSkippedAfterClose(t *testing.T) {
	f := newFixture(t)
	f.svc.Close()

	payload, _, err := f.run(t, "street.png", entity.StrategyA, nil)
	require.NoError(t, err)
	_, ok := payload.(detection.RenderedResponse)
	assert.True(t, ok)

	f.svc.Close()
	assert.Empty(t, f.history.entries)
	assert.Empty(t, f.mirror.uploaded)
}
