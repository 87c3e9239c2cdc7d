package domain

import "errors"

// ReportState is the position of a report in its pipeline.
type ReportState string

// Report states. Running states come first, terminal states after.
const (
	ReportStateQueued     ReportState = "queued"
	ReportStatePredicting ReportState = "predicting"
	ReportStateScoring    ReportState = "scoring"
	ReportStateEvaluating ReportState = "evaluating"
	ReportStateNarrating  ReportState = "narrating"
	ReportStatePersisting ReportState = "persisting"

	// ReportStateCompleted is the only successful terminal state.
	ReportStateCompleted ReportState = "completed"
	// ReportStateFailure means every stage succeeded but the document is empty.
	ReportStateFailure          ReportState = "failure"
	ReportStateUnitError        ReportState = "unit_error"
	ReportStateFileError        ReportState = "file_error"
	ReportStateIllegalOperation ReportState = "illegal_operation"
	ReportStateInvalidData      ReportState = "invalid_data"
	ReportStateStopped          ReportState = "stopped"
)

// ErrInvalidReportState is returned for unknown state values.
var ErrInvalidReportState = errors.New("invalid report state")

var stateRanks = map[ReportState]int{
	ReportStateQueued:           0,
	ReportStatePredicting:       1,
	ReportStateScoring:          1,
	ReportStateEvaluating:       2,
	ReportStateNarrating:        3,
	ReportStatePersisting:       4,
	ReportStateCompleted:        5,
	ReportStateFailure:          5,
	ReportStateUnitError:        5,
	ReportStateFileError:        5,
	ReportStateIllegalOperation: 5,
	ReportStateInvalidData:      5,
	ReportStateStopped:          5,
}

func (s ReportState) rank() int {
	return stateRanks[s]
}

// Valid reports whether s is a known state.
func (s ReportState) Valid() bool {
	_, ok := stateRanks[s]
	return ok
}

// Terminal reports whether s ends the lifecycle.
func (s ReportState) Terminal() bool {
	return s.Valid() && s.rank() == stateRanks[ReportStateCompleted]
}

// Succeeded reports whether s is the successful terminal state.
func (s ReportState) Succeeded() bool {
	return s == ReportStateCompleted
}
