package pipeline

import (
	"errors"
	"fmt"
)

// Code classifies why a run stopped.
type Code string

const (
	CodeAcquisitionFailed Code = "AcquisitionFailed"
	CodeExtractionFailed  Code = "ExtractionFailed"
	CodeNoTextFound       Code = "NoTextFound"
	CodeParseFailed       Code = "ParseFailed"
	CodePersistenceFailed Code = "PersistenceFailed"
	CodeInvalidInput      Code = "InvalidInput"
	CodeNotFound          Code = "NotFound"
	CodeInternal          Code = "Internal"
)

// Stage names used in logs and errors.
const (
	StageAcquire = "acquire"
	StageExtract = "extract"
	StageParse   = "parse"
	StageSkills  = "skills"
	StageMerge   = "merge"
	StageRoadmap = "roadmap"
	StageMirror  = "mirror"
)

// StageError is a hard-stop failure of one run.
type StageError struct {
	Code    Code
	Stage   string
	Message string
	Err     error
}

func NewStageError(code Code, stage, message string, err error) *StageError {
	return &StageError{Code: code, Stage: stage, Message: message, Err: err}
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// MessageOf returns the human-readable message carried by err.
func MessageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
