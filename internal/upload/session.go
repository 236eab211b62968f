package upload

import (
	"errors"
	"fmt"
	"time"
)

// Phase is where an upload session sits in the upload → validate → process workflow
type Phase string

const (
	PhaseEmpty          Phase = "empty"
	PhaseSelected       Phase = "selected"
	PhaseUploading      Phase = "uploading"
	PhaseUploaded       Phase = "uploaded"
	PhaseUploadFailed   Phase = "upload_failed"
	PhaseValidating     Phase = "validating"
	PhaseValidated      Phase = "validated"
	PhaseValidateFailed Phase = "validate_failed"
	PhaseProcessing     Phase = "processing"
	PhaseProcessed      Phase = "processed"
	PhaseProcessFailed  Phase = "process_failed"
)

var (
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrSessionNotFound   = errors.New("upload session not found")
	ErrStale             = errors.New("upload session changed while the request was in flight")
	ErrNoFile            = errors.New("no file selected")
)

// transitions lists the phases reachable from each phase. Reset is handled
// separately since it is allowed from anywhere.
var transitions = map[Phase][]Phase{
	PhaseEmpty:          {PhaseSelected},
	PhaseSelected:       {PhaseSelected, PhaseUploading},
	PhaseUploading:      {PhaseUploaded, PhaseUploadFailed},
	PhaseUploadFailed:   {PhaseUploading},
	PhaseUploaded:       {PhaseValidating},
	PhaseValidating:     {PhaseValidated, PhaseValidateFailed},
	PhaseValidateFailed: {PhaseValidating},
	PhaseValidated:      {PhaseProcessing},
	PhaseProcessing:     {PhaseProcessed, PhaseProcessFailed},
	PhaseProcessFailed:  {PhaseProcessing},
}

// CanTransition reports whether a session may move from one phase to another
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// File describes the staged PDF of a session
type File struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	StoredPath  string `json:"stored_path"`
	Pages       int    `json:"pages,omitempty"`
}

// Session is the state of one upload attempt
type Session struct {
	ID        string `json:"id"`
	Phase     Phase  `json:"phase"`
	File      *File  `json:"file,omitempty"`
	FileID    int64  `json:"file_id,omitempty"`    // assigned by the backend on upload
	ReceiptID string `json:"receipt_id,omitempty"` // set once processed
	Error     string `json:"error,omitempty"`      // message of the failed phase
	Notice    string `json:"notice,omitempty"`     // why the last selection was rejected
	// Generation changes on every reset so late completions can be discarded
	Generation int       `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Session) transition(to Phase) error {
	if !CanTransition(s.Phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Phase, to)
	}
	s.Phase = to
	return nil
}

func (s *Session) reset() {
	s.Phase = PhaseEmpty
	s.File = nil
	s.FileID = 0
	s.ReceiptID = ""
	s.Error = ""
	s.Notice = ""
	s.Generation++
}

// Busy reports whether a phase call is in flight
func (s *Session) Busy() bool {
	return s.Phase == PhaseUploading || s.Phase == PhaseValidating || s.Phase == PhaseProcessing
}

// Step is one of the three backend calls of the workflow
type Step int

const (
	StepUpload Step = iota
	StepValidate
	StepProcess
)

// StepState is how a step is shown to the user
type StepState string

const (
	StepHidden  StepState = "hidden"
	StepPending StepState = "pending"
	StepRunning StepState = "running"
	StepDone    StepState = "done"
	StepFailed  StepState = "failed"
)

// rank orders the phases along the happy path; failed phases rank with their running phase
var rank = map[Phase]int{
	PhaseEmpty:          0,
	PhaseSelected:       1,
	PhaseUploading:      2,
	PhaseUploadFailed:   2,
	PhaseUploaded:       3,
	PhaseValidating:     4,
	PhaseValidateFailed: 4,
	PhaseValidated:      5,
	PhaseProcessing:     6,
	PhaseProcessFailed:  6,
	PhaseProcessed:      7,
}

type stepPhases struct {
	ready, running, failed, done Phase
}

var steps = map[Step]stepPhases{
	StepUpload:   {PhaseSelected, PhaseUploading, PhaseUploadFailed, PhaseUploaded},
	StepValidate: {PhaseUploaded, PhaseValidating, PhaseValidateFailed, PhaseValidated},
	StepProcess:  {PhaseValidated, PhaseProcessing, PhaseProcessFailed, PhaseProcessed},
}

// State derives the display state of a step from the session phase
func (s *Session) State(step Step) StepState {
	p := steps[step]
	switch {
	case s.Phase == p.running:
		return StepRunning
	case s.Phase == p.failed:
		return StepFailed
	case rank[s.Phase] >= rank[p.done]:
		return StepDone
	case s.Phase == p.ready:
		return StepPending
	default:
		return StepHidden
	}
}
