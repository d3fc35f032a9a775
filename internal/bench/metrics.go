package bench

import (
	"context"
	"strconv"
	"strings"
	"time"

	"detectbench/internal/entity"
)

type Field uint8

const (
	FieldSize Field = iota
	FieldClientPreUpload
	FieldServerRecvPre
	FieldServerInfer
	FieldServerPost
	FieldClientRender
	FieldTotal
)

var fieldIDPrefix = map[Field]string{
	FieldSize:            "metric-size-",
	FieldClientPreUpload: "metric-client-preupload-",
	FieldServerRecvPre:   "metric-server-recvpre-",
	FieldServerInfer:     "metric-infer-",
	FieldServerPost:      "metric-post-",
	FieldClientRender:    "metric-client-render-",
	FieldTotal:           "metric-total-",
}

// Fields is the report column order.
func Fields() []Field {
	return []Field{
		FieldSize,
		FieldClientPreUpload,
		FieldServerRecvPre,
		FieldServerInfer,
		FieldServerPost,
		FieldClientRender,
		FieldTotal,
	}
}

// MetricID is the page element id holding field for strategy.
func MetricID(field Field, strategy entity.Strategy) string {
	return fieldIDPrefix[field] + strategy.Key()
}

// Metrics holds the raw, trimmed cell texts of one run.
type Metrics [7]string

func (m Metrics) Get(f Field) string {
	return m[f]
}

var placeholders = map[string]struct{}{
	"":    {},
	"—":   {},
	"N/A": {},
	"#":   {},
}

func isPlaceholder(s string) bool {
	_, ok := placeholders[s]
	return ok
}

// ParseMB reads "1.23 MB" style sizes.
func ParseMB(text string) (float64, bool) {
	t := strings.TrimSpace(text)
	if isPlaceholder(t) {
		return 0, false
	}
	t = strings.TrimSpace(strings.ReplaceAll(t, "MB", ""))
	fields := strings.Fields(t)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseSeconds reads "0.123 s" style durations. Every "s" is stripped, so
// anything else wrapped around the number fails to parse.
func ParseSeconds(text string) (float64, bool) {
	t := strings.TrimSpace(text)
	if isPlaceholder(t) {
		return 0, false
	}
	t = strings.TrimSpace(strings.ReplaceAll(t, "s", ""))
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseField(f Field, text string) (float64, bool) {
	if f == FieldSize {
		return ParseMB(text)
	}
	return ParseSeconds(text)
}

type MetricsCollector struct {
	lookupTimeout time.Duration
}

func NewMetricsCollector(lookupTimeout time.Duration) *MetricsCollector {
	if lookupTimeout <= 0 {
		lookupTimeout = 2 * time.Second
	}
	return &MetricsCollector{lookupTimeout: lookupTimeout}
}

// Collect reads every metric cell. A cell that cannot be read yields "".
func (c *MetricsCollector) Collect(ctx context.Context, page Page, strategy entity.Strategy) Metrics {
	var m Metrics
	for _, f := range Fields() {
		m[f] = c.text(ctx, page, "#"+MetricID(f, strategy))
	}
	return m
}

func (c *MetricsCollector) text(ctx context.Context, page Page, selector string) string {
	lookupCtx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	t, err := page.Text(lookupCtx, selector)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(t)
}
