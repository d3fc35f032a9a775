package bench

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"detectbench/internal/entity"

	jsoniter "github.com/json-iterator/go"
)

const (
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"

	averageLabel    = "average"
	missingArtifact = "—"
	notAvailable    = "N/A"
)

var csvHeader = []string{
	"filename",
	"strategy",
	"uploaded size",
	"client pre-upload time",
	"server receive+preprocess time",
	"server inference time",
	"server post-processing time",
	"client render time",
	"end-to-end time",
	"output artifact filename",
	"status",
}

// Run is one image's pass through the page.
type Run struct {
	Filename string
	Strategy entity.Strategy
	Metrics  Metrics
	// Artifact is the saved file name, empty when nothing could be saved.
	Artifact string
}

type Report struct {
	Strategy entity.Strategy
	Runs     []Run
	// Aborted marks every row incomplete.
	Aborted bool
	Cause   string
}

func NewReport(strategy entity.Strategy) *Report {
	return &Report{Strategy: strategy}
}

func (r *Report) Add(run Run) {
	r.Runs = append(r.Runs, run)
}

func (r *Report) Abort(cause error) {
	r.Aborted = true
	if cause != nil {
		r.Cause = cause.Error()
	}
}

func (r *Report) status() string {
	if r.Aborted {
		return StatusIncomplete
	}
	return StatusComplete
}

// Average is the mean of one field, absent when no run produced a value.
type Average struct {
	Value   float64
	Present bool
}

// Averages computes the mean of every field over the runs that parsed. For
// strategy C the first sample of a field is dropped when there are more,
// since it carries the in-browser model load.
func (r *Report) Averages() map[Field]Average {
	out := make(map[Field]Average, len(Fields()))
	for _, f := range Fields() {
		var samples []float64
		for _, run := range r.Runs {
			if v, ok := parseField(f, run.Metrics.Get(f)); ok {
				samples = append(samples, v)
			}
		}
		if r.Strategy == entity.StrategyC && len(samples) > 1 {
			samples = samples[1:]
		}
		out[f] = mean(samples)
	}
	return out
}

func mean(values []float64) Average {
	if len(values) == 0 {
		return Average{}
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return Average{Value: sum / float64(len(values)), Present: true}
}

func formatAverage(f Field, a Average) string {
	if !a.Present {
		return notAvailable
	}
	if f == FieldSize {
		return fmt.Sprintf("%.2f MB", a.Value)
	}
	return fmt.Sprintf("%.3f s", a.Value)
}

func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	status := r.status()
	for _, run := range r.Runs {
		row := []string{run.Filename, run.Strategy.String()}
		for _, f := range Fields() {
			row = append(row, run.Metrics.Get(f))
		}
		artifact := run.Artifact
		if artifact == "" {
			artifact = missingArtifact
		}
		row = append(row, artifact, status)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	avg := r.Averages()
	row := []string{averageLabel, r.Strategy.String()}
	for _, f := range Fields() {
		row = append(row, formatAverage(f, avg[f]))
	}
	row = append(row, missingArtifact, status)
	if err := cw.Write(row); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

type summaryJSON struct {
	Strategy string              `json:"strategy"`
	Runs     int                 `json:"runs"`
	Status   string              `json:"status"`
	Cause    string              `json:"cause,omitempty"`
	Averages map[string]*float64 `json:"averages"`
}

var fieldKeys = map[Field]string{
	FieldSize:            "size_mb",
	FieldClientPreUpload: "client_pre_upload_s",
	FieldServerRecvPre:   "server_recv_pre_s",
	FieldServerInfer:     "server_infer_s",
	FieldServerPost:      "server_post_s",
	FieldClientRender:    "client_render_s",
	FieldTotal:           "total_s",
}

// Save writes metrics.csv and summary.json into dir.
func (r *Report) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	csvPath := filepath.Join(dir, "metrics.csv")
	f, err := os.Create(csvPath)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := r.WriteCSV(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	summary := summaryJSON{
		Strategy: r.Strategy.String(),
		Runs:     len(r.Runs),
		Status:   r.status(),
		Cause:    r.Cause,
		Averages: make(map[string]*float64, len(fieldKeys)),
	}
	for f, a := range r.Averages() {
		if a.Present {
			v := a.Value
			summary.Averages[fieldKeys[f]] = &v
		} else {
			summary.Averages[fieldKeys[f]] = nil
		}
	}
	data, err := jsoniter.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.json"), data, 0o644); err != nil {
		return "", err
	}

	return csvPath, nil
}
