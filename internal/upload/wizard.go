package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipts-web/internal/backend"
	"github.com/zombor/receipts-web/internal/receipt"
)

// RedirectDelay is how long the processed state stays on screen before
// the browser moves on to the receipt
const RedirectDelay = 1500 * time.Millisecond

// Backend is the part of the receipt backend the wizard drives
type Backend interface {
	Upload(ctx context.Context, filename string, file io.Reader) (*backend.UploadResult, error)
	Validate(ctx context.Context, fileID int64) (*backend.Validation, error)
	Process(ctx context.Context, fileID int64) (*receipt.Receipt, error)
}

// IDGenerator generates unique IDs for sessions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Wizard runs the select → upload → validate → process workflow. Each
// phase may only start from the phase before it (or from its own failure,
// as a retry), which keeps backend calls for a session from overlapping.
type Wizard struct {
	backend     Backend
	store       Store
	storage     Storage
	previewer   Previewer
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewWizard creates a Wizard with default ID generator and time source
func NewWizard(b Backend, store Store, storage Storage, previewer Previewer) *Wizard {
	return NewWizardWithDeps(b, store, storage, previewer, &uuidGenerator{}, &defaultTimeSource{})
}

// NewWizardWithDeps creates a Wizard with custom dependencies for testing
func NewWizardWithDeps(b Backend, store Store, storage Storage, previewer Previewer, idGen IDGenerator, timeSrc TimeSource) *Wizard {
	return &Wizard{
		backend:     b,
		store:       store,
		storage:     storage,
		previewer:   previewer,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Start creates an empty session
func (w *Wizard) Start() (*Session, error) {
	now := w.timeSource.Now()
	session := &Session{
		ID:        w.idGenerator.Generate(),
		Phase:     PhaseEmpty,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.store.Save(session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return session, nil
}

// Session returns the current state of a session
func (w *Wizard) Session(id string) (*Session, error) {
	return w.store.Get(id)
}

// Select checks a file and stages it for upload. A rejected file leaves
// the phase unchanged and records the reason as the session notice; the
// backend is never contacted.
func (w *Wizard) Select(id, filename, contentType string, size int64, file io.Reader) (*Session, error) {
	session, err := w.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(session.Phase, PhaseSelected) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.Phase, PhaseSelected)
	}

	if err := CheckSize(size); err != nil {
		return w.Reject(id, err)
	}

	// Read one byte past the limit so an understated size is still caught
	data, err := io.ReadAll(io.LimitReader(file, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading selected file: %w", err)
	}
	if err := CheckSize(int64(len(data))); err != nil {
		return w.Reject(id, err)
	}
	if err := CheckType(contentType, data); err != nil {
		return w.Reject(id, err)
	}

	// Each selection gets its own staged name so a concurrent upload never
	// reads a file this call may later discard
	storedPath, err := w.storage.Save(fmt.Sprintf("%s_%s_%s", id, w.idGenerator.Generate(), sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("staging file: %w", err)
	}

	pages, err := w.previewer.PageCount(data)
	if err != nil {
		slog.Warn("Could not count PDF pages", "session", id, "filename", filename, "error", err)
	}

	var previous string
	session, err = w.store.Update(id, func(s *Session) error {
		if err := s.transition(PhaseSelected); err != nil {
			return err
		}
		if s.File != nil && s.File.StoredPath != storedPath {
			previous = s.File.StoredPath
		}
		s.File = &File{
			Name:        filename,
			Size:        int64(len(data)),
			ContentType: pdfMIME,
			StoredPath:  storedPath,
			Pages:       pages,
		}
		s.Error = ""
		s.Notice = ""
		s.UpdatedAt = w.timeSource.Now()
		return nil
	})
	if err != nil {
		w.discard(storedPath)
		return nil, err
	}
	if previous != "" {
		w.discard(previous)
	}
	return session, nil
}

// Reject records why a file was refused without touching the phase
func (w *Wizard) Reject(id string, reason error) (*Session, error) {
	slog.Info("Rejected selected file", "session", id, "reason", reason)
	return w.store.Update(id, func(s *Session) error {
		s.Notice = reason.Error()
		s.UpdatedAt = w.timeSource.Now()
		return nil
	})
}

// Upload sends the staged file to the backend. A successful upload goes
// straight on to validation.
func (w *Wizard) Upload(ctx context.Context, id string) (*Session, error) {
	ctx = context.WithoutCancel(ctx)

	session, err := w.begin(id, PhaseUploading)
	if err != nil {
		return nil, err
	}

	var result *backend.UploadResult
	data, uploadErr := w.storage.Get(session.File.StoredPath)
	if uploadErr != nil {
		uploadErr = fmt.Errorf("staged file is no longer available: %w", uploadErr)
	} else {
		result, uploadErr = w.backend.Upload(ctx, session.File.Name, bytes.NewReader(data))
	}

	session, err = w.finish(id, session.Generation, func(s *Session) error {
		if uploadErr != nil {
			s.Error = failure(uploadErr, "Upload failed")
			return s.transition(PhaseUploadFailed)
		}
		s.FileID = result.FileID
		return s.transition(PhaseUploaded)
	})
	if err != nil || session.Phase != PhaseUploaded {
		return session, err
	}

	return w.Validate(ctx, id)
}

// Validate asks the backend to validate the uploaded file. A response
// reporting the file invalid is a failure, not a success with errors.
func (w *Wizard) Validate(ctx context.Context, id string) (*Session, error) {
	ctx = context.WithoutCancel(ctx)

	session, err := w.begin(id, PhaseValidating)
	if err != nil {
		return nil, err
	}

	validation, err := w.backend.Validate(ctx, session.FileID)

	return w.finish(id, session.Generation, func(s *Session) error {
		switch {
		case err != nil:
			s.Error = failure(err, "Validation failed")
			return s.transition(PhaseValidateFailed)
		case !validation.Valid:
			s.Error = strings.Join(validation.Errors, ", ")
			if s.Error == "" {
				s.Error = "Validation failed"
			}
			return s.transition(PhaseValidateFailed)
		default:
			return s.transition(PhaseValidated)
		}
	})
}

// Process asks the backend to extract the receipt. On success the
// session records the receipt ID to redirect to.
func (w *Wizard) Process(ctx context.Context, id string) (*Session, error) {
	ctx = context.WithoutCancel(ctx)

	session, err := w.begin(id, PhaseProcessing)
	if err != nil {
		return nil, err
	}

	r, err := w.backend.Process(ctx, session.FileID)

	return w.finish(id, session.Generation, func(s *Session) error {
		if err != nil {
			s.Error = failure(err, "Processing failed")
			return s.transition(PhaseProcessFailed)
		}
		s.ReceiptID = r.ID
		return s.transition(PhaseProcessed)
	})
}

// Reset discards everything about the session and returns it to empty.
// Calls still in flight for the old file are ignored when they complete.
func (w *Wizard) Reset(id string) (*Session, error) {
	var staged string
	session, err := w.store.Update(id, func(s *Session) error {
		if s.File != nil {
			staged = s.File.StoredPath
		}
		s.reset()
		s.UpdatedAt = w.timeSource.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if staged != "" {
		w.discard(staged)
	}
	return session, nil
}

// Preview renders the first page of the staged file
func (w *Wizard) Preview(id string) ([]byte, error) {
	session, err := w.store.Get(id)
	if err != nil {
		return nil, err
	}
	if session.File == nil {
		return nil, ErrNoFile
	}
	data, err := w.storage.Get(session.File.StoredPath)
	if err != nil {
		return nil, fmt.Errorf("reading staged file: %w", err)
	}
	return w.previewer.FirstPage(data)
}

// begin moves the session into a running phase, clearing the error of
// the previous attempt
func (w *Wizard) begin(id string, running Phase) (*Session, error) {
	return w.store.Update(id, func(s *Session) error {
		if err := s.transition(running); err != nil {
			return err
		}
		if running == PhaseUploading && s.File == nil {
			return ErrNoFile
		}
		s.Error = ""
		s.Notice = ""
		s.UpdatedAt = w.timeSource.Now()
		return nil
	})
}

// finish applies the outcome of a backend call, unless the session was
// reset or removed while the call was running
func (w *Wizard) finish(id string, generation int, apply func(*Session) error) (*Session, error) {
	session, err := w.store.Update(id, func(s *Session) error {
		if s.Generation != generation {
			return ErrStale
		}
		if err := apply(s); err != nil {
			return err
		}
		s.UpdatedAt = w.timeSource.Now()
		return nil
	})
	if errors.Is(err, ErrSessionNotFound) {
		err = ErrStale
	}
	if errors.Is(err, ErrStale) {
		slog.Debug("Discarding late completion", "session", id)
	}
	return session, err
}

func (w *Wizard) discard(path string) {
	if err := w.storage.Delete(path); err != nil {
		slog.Warn("Failed to delete staged file", "path", path, "error", err)
	}
}

func failure(err error, fallback string) string {
	if msg := backend.Message(err); msg != "" {
		return msg
	}
	return fallback
}
