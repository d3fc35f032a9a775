package entity

import (
	"errors"
	"image"
	"strings"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

type Strategy uint8

const (
	StrategyUnknown Strategy = 0
	// StrategyA renders the detections server-side and returns the annotated image.
	StrategyA Strategy = 1
	// StrategyB returns the detected boxes only; the client draws them.
	StrategyB Strategy = 2
	// StrategyC runs no server inference at all.
	StrategyC Strategy = 3
)

var StrategyMap = map[Strategy]string{
	StrategyA: "A",
	StrategyB: "B",
	StrategyC: "C",
}

func (s Strategy) String() string {
	return StrategyMap[s]
}

// Key is the lower-case form used in page element ids.
func (s Strategy) Key() string {
	return strings.ToLower(s.String())
}

func (s Strategy) NeedsEngine() bool {
	return s == StrategyA || s == StrategyB
}

// ParseStrategy is case-insensitive and defaults to A when empty.
func ParseStrategy(raw string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "A":
		return StrategyA, nil
	case "B":
		return StrategyB, nil
	case "C":
		return StrategyC, nil
	default:
		return StrategyUnknown, ErrUnknownStrategy
	}
}

func Strategies() []Strategy {
	return []Strategy{StrategyA, StrategyB, StrategyC}
}

// Box is expressed in absolute pixels of the original image.
type Box struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	Cls  int     `json:"cls"`
	Conf float64 `json:"conf"`
}

// Letterbox describes how a client squeezed the original image into the
// uploaded one, so boxes can be mapped back.
type Letterbox struct {
	Ratio float64
	PadX  float64
	PadY  float64
	OrigW int
	OrigH int
}

func (l Letterbox) Valid() bool {
	return l.Ratio > 0 && l.OrigW > 0 && l.OrigH > 0
}

func (l Letterbox) Unmap(b Box) Box {
	b.X1 = clamp((b.X1-l.PadX)/l.Ratio, 0, float64(l.OrigW))
	b.Y1 = clamp((b.Y1-l.PadY)/l.Ratio, 0, float64(l.OrigH))
	b.X2 = clamp((b.X2-l.PadX)/l.Ratio, 0, float64(l.OrigW))
	b.Y2 = clamp((b.Y2-l.PadY)/l.Ratio, 0, float64(l.OrigH))
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type DetectionRequest struct {
	Image          image.Image
	Strategy       Strategy
	SourceFilename string
	SourcePath     string
	Letterbox      *Letterbox
}

// DetectionResult is one of RenderedResult, BoxListResult or NoOpResult.
type DetectionResult interface {
	Strategy() Strategy
	detectionResult()
}

type RenderedResult struct {
	OriginalPath  string
	AnnotatedPath string
}

func (RenderedResult) Strategy() Strategy { return StrategyA }
func (RenderedResult) detectionResult()   {}

type BoxListResult struct {
	OriginalPath string
	Boxes        []Box
}

func (BoxListResult) Strategy() Strategy { return StrategyB }
func (BoxListResult) detectionResult()   {}

type NoOpResult struct {
	Message string
}

func (NoOpResult) Strategy() Strategy { return StrategyC }
func (NoOpResult) detectionResult()   {}
