package bench

import (
	"context"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"detectbench/internal/entity"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeImages(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
	}
	return dir
}

// completeRun fills every metric cell of strategy the way the page does when
// a run finishes.
func completeRun(p *fakePage, strategy entity.Strategy, total string) {
	for _, f := range Fields() {
		p.setText("#"+MetricID(f, strategy), "0.100 s")
	}
	p.setText("#"+MetricID(FieldSize, strategy), "1.00 MB")
	p.setText("#"+MetricID(FieldTotal, strategy), total)
}

func resetRun(p *fakePage, strategy entity.Strategy) {
	for _, f := range Fields() {
		p.setText("#"+MetricID(f, strategy), "—")
	}
}

func testOptions(input, output string, strategy entity.Strategy) Options {
	return Options{
		Input:        input,
		Strategy:     strategy,
		Server:       "http://localhost:3000",
		Output:       output,
		Timeout:      100 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
}

func TestDriverRunsEveryImageInOrder(t *testing.T) {
	input := writeImages(t, "b.png", "a.jpg", "notes.txt")
	output := t.TempDir()

	artifact := []byte("annotated")
	page := newFakePage()
	page.onClick = func(p *fakePage, n int) {
		completeRun(p, entity.StrategyA, "0.500 s")
		p.setAttr("#download-a-result", "href", "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(artifact))
	}

	report, err := NewDriver(page, quietLogger(), testOptions(input, output, entity.StrategyA)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:3000"}, page.navigated)
	assert.Equal(t, []string{filepath.Join(input, "a.jpg"), filepath.Join(input, "b.png")}, page.inputs)
	assert.Equal(t, []string{"A", "A"}, page.options)

	require.Len(t, report.Runs, 2)
	assert.False(t, report.Aborted)
	assert.Equal(t, "a.jpg", report.Runs[0].Filename)
	assert.Equal(t, "a_det.jpg", report.Runs[0].Artifact)
	assert.Equal(t, "b_det.jpg", report.Runs[1].Artifact)
	assert.Equal(t, "0.500 s", report.Runs[1].Metrics.Get(FieldTotal))

	saved, err := os.ReadFile(filepath.Join(output, "A", "a_det.jpg"))
	require.NoError(t, err)
	assert.Equal(t, artifact, saved)

	csvData, err := os.ReadFile(filepath.Join(output, "A", "metrics.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "average,A,1.00 MB,")
	assert.NotContains(t, string(csvData), StatusIncomplete)
}

func TestDriverTimeoutAbortsAndFlushesIncompleteRows(t *testing.T) {
	input := writeImages(t, "a.jpg", "b.jpg", "c.jpg")
	output := t.TempDir()

	page := newFakePage()
	page.onClick = func(p *fakePage, n int) {
		resetRun(p, entity.StrategyB)
		if n == 1 {
			completeRun(p, entity.StrategyB, "0.700 s")
		}
	}

	report, err := NewDriver(page, quietLogger(), testOptions(input, output, entity.StrategyB)).Run(context.Background())
	require.ErrorIs(t, err, ErrCompletionTimeout)

	assert.True(t, report.Aborted)
	require.Len(t, report.Runs, 1)
	assert.Equal(t, 2, page.clicks)

	csvData, err := os.ReadFile(filepath.Join(output, "B", "metrics.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[1], ",incomplete"))
	assert.True(t, strings.HasSuffix(lines[2], ",incomplete"))
}

func TestDriverRecordsRunWhenArtifactMissing(t *testing.T) {
	input := writeImages(t, "a.jpg")
	output := t.TempDir()

	page := newFakePage()
	page.onClick = func(p *fakePage, n int) {
		completeRun(p, entity.StrategyC, "0.300 s")
		p.setAttr("#download-c-result", "href", "#")
	}

	report, err := NewDriver(page, quietLogger(), testOptions(input, output, entity.StrategyC)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Runs, 1)
	assert.Empty(t, report.Runs[0].Artifact)

	csvData, err := os.ReadFile(filepath.Join(output, "C", "metrics.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "0.300 s,—,complete")
}

func TestDriverNoImages(t *testing.T) {
	input := writeImages(t, "readme.md")

	_, err := NewDriver(newFakePage(), quietLogger(), testOptions(input, t.TempDir(), entity.StrategyA)).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestDriverNavigationFailureAborts(t *testing.T) {
	input := writeImages(t, "a.jpg")
	output := t.TempDir()

	page := newFakePage()
	page.navErr = errNoElement

	report, err := NewDriver(page, quietLogger(), testOptions(input, output, entity.StrategyA)).Run(context.Background())
	require.ErrorIs(t, err, errNoElement)
	assert.True(t, report.Aborted)
	assert.FileExists(t, filepath.Join(output, "A", "metrics.csv"))
}

func TestMachineRejectsSkippedState(t *testing.T) {
	m := newMachine(quietLogger())
	require.NoError(t, m.begin("a.jpg"))

	err := m.advance(StateRunStarted)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateIdle, m.state)

	require.NoError(t, m.advance(StateFileSelected))
	assert.Equal(t, "FileSelected", m.state.String())
	assert.ErrorIs(t, m.begin("b.jpg"), ErrIllegalTransition)
}
