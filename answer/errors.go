package answer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Stage names a step of the answer pipeline.
type Stage string

const (
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
)

var (
	// ErrRetrieval matches any failure of the retrieve stage.
	ErrRetrieval = errors.New("answer: could not retrieve context")

	// ErrGeneration matches any failure of the generate stage.
	ErrGeneration = errors.New("answer: could not generate an answer")

	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("answer: query is empty")

	// ErrInvalidQuery is returned for a query that is not valid UTF-8.
	ErrInvalidQuery = errors.New("answer: query is not valid UTF-8")

	// ErrEmptyAnswer is reported when a generator returns blank text.
	ErrEmptyAnswer = errors.New("answer: generator returned empty text")

	// ErrReportedFailure wraps generator text that describes a failure.
	ErrReportedFailure = errors.New("answer: generator reported failure")

	// ErrNilRetriever is returned by New when no retriever is given.
	ErrNilRetriever = errors.New("answer: retriever is nil")

	// ErrNilGenerator is returned by New when no generator is given.
	ErrNilGenerator = errors.New("answer: generator is nil")
)

// StageError tags a pipeline failure with its stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("answer: %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches ErrRetrieval or ErrGeneration according to the stage.
func (e *StageError) Is(target error) bool {
	switch target {
	case ErrRetrieval:
		return e.Stage == StageRetrieve
	case ErrGeneration:
		return e.Stage == StageGenerate
	}
	return false
}

// StageOf returns the failed stage of err, or "" if err carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// ErrorTextDetector inspects generated text and returns a non-nil error when
// the text describes a failure instead of an answer.
type ErrorTextDetector func(text string) error

var reportedFailure = regexp.MustCompile(`^\[[^\]\n]*Error\]:`)

// DetectErrorText flags blank text and text of the form "[<Provider> Error]: ...".
func DetectErrorText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyAnswer
	}
	if reportedFailure.MatchString(trimmed) {
		return fmt.Errorf("%w: %s", ErrReportedFailure, trimmed)
	}
	return nil
}
