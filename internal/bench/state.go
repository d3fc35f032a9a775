package bench

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var ErrIllegalTransition = errors.New("illegal state transition")

type State uint8

const (
	StateIdle State = iota
	StateFileSelected
	StateStrategyChosen
	StateRunStarted
	StateAwaitingCompletion
	StateMetricsScraped
	StateArtifactSaved
	StateRecorded
)

var stateNames = map[State]string{
	StateIdle:               "Idle",
	StateFileSelected:       "FileSelected",
	StateStrategyChosen:     "StrategyChosen",
	StateRunStarted:         "RunStarted",
	StateAwaitingCompletion: "AwaitingCompletion",
	StateMetricsScraped:     "MetricsScraped",
	StateArtifactSaved:      "ArtifactSaved",
	StateRecorded:           "Recorded",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// next lists the only legal successor of each state. Recorded loops back to
// Idle for the following image.
var next = map[State]State{
	StateIdle:               StateFileSelected,
	StateFileSelected:       StateStrategyChosen,
	StateStrategyChosen:     StateRunStarted,
	StateRunStarted:         StateAwaitingCompletion,
	StateAwaitingCompletion: StateMetricsScraped,
	StateMetricsScraped:     StateArtifactSaved,
	StateArtifactSaved:      StateRecorded,
	StateRecorded:           StateIdle,
}

type machine struct {
	state State
	image string
	log   *logrus.Logger
}

func newMachine(log *logrus.Logger) *machine {
	return &machine{state: StateIdle, log: log}
}

func (m *machine) advance(to State) error {
	if next[m.state] != to {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, to)
	}

	m.log.WithFields(logrus.Fields{
		"image": m.image,
		"from":  m.state.String(),
		"to":    to.String(),
	}).Debug("Benchmark state transition")

	m.state = to
	return nil
}

// begin starts a new image from Idle.
func (m *machine) begin(image string) error {
	if m.state == StateRecorded {
		if err := m.advance(StateIdle); err != nil {
			return err
		}
	}
	if m.state != StateIdle {
		return fmt.Errorf("%w: %s is not idle", ErrIllegalTransition, m.state)
	}
	m.image = image
	return nil
}
