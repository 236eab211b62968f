package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/receipts-web/internal/upload"
)

const (
	sessionCookie = "upload_session"

	// maxRequestSize leaves room for the multipart framing around a file of
	// the largest accepted size
	maxRequestSize = upload.MaxFileSize + 1<<20
	maxFormMemory  = 1 << 20
)

var errNoSelection = &upload.RejectionError{Message: "Please select a PDF file to upload."}

// currentSession returns the wizard session named by the cookie, starting a
// new one when there is none or it no longer exists
func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) (*upload.Session, error) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		session, err := s.wizard.Session(c.Value)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, upload.ErrSessionNotFound) {
			return nil, err
		}
	}

	session, err := s.wizard.Start()
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.ID,
		Path:     "/upload",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Debug("Started upload session", "session", session.ID)
	return session, nil
}

// handleUploadPage renders the wizard. A session that already finished is
// cleared so the page offers a fresh upload.
func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession(w, r)
	if err != nil {
		slog.Error("Error loading upload session", "error", err)
		s.renderError(w, http.StatusInternalServerError, "Could not start an upload session.")
		return
	}

	if session.Phase == upload.PhaseProcessed {
		id := session.ID
		if session, err = s.wizard.Reset(id); err != nil {
			slog.Error("Error resetting upload session", "session", id, "error", err)
			s.renderError(w, http.StatusInternalServerError, "Could not start an upload session.")
			return
		}
	}

	s.renderUpload(w, http.StatusOK, session)
}

// handleUploadSelect stages the chosen file
func (s *Server) handleUploadSelect(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession(w, r)
	if err != nil {
		slog.Error("Error loading upload session", "error", err)
		s.renderError(w, http.StatusInternalServerError, "Could not start an upload session.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, r, session.ID, upload.ErrTooLarge)
			return
		}
		slog.Error("Error parsing multipart form", "session", session.ID, "error", err)
		s.reject(w, r, session.ID, errNoSelection)
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, header, err := r.FormFile("file")
	if err != nil {
		s.reject(w, r, session.ID, errNoSelection)
		return
	}
	defer f.Close()

	_, err = s.wizard.Select(session.ID, header.Filename, header.Header.Get("Content-Type"), header.Size, f)
	s.afterStep(w, r, session.ID, "select", err)
}

// handleUploadUpload sends the staged file; validation follows on success
func (s *Server) handleUploadUpload(w http.ResponseWriter, r *http.Request) {
	s.runStep(w, r, "upload", s.wizard.Upload)
}

// handleUploadValidate retries validation
func (s *Server) handleUploadValidate(w http.ResponseWriter, r *http.Request) {
	s.runStep(w, r, "validate", s.wizard.Validate)
}

// handleUploadProcess extracts the receipt. On success the page is
// rendered directly so it can show the result before moving on.
func (s *Server) handleUploadProcess(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession(w, r)
	if err != nil {
		slog.Error("Error loading upload session", "error", err)
		s.renderError(w, http.StatusInternalServerError, "Could not start an upload session.")
		return
	}

	processed, err := s.wizard.Process(r.Context(), session.ID)
	if err == nil && processed.Phase == upload.PhaseProcessed {
		slog.Info("Processed receipt", "session", session.ID, "file_id", processed.FileID, "receipt", processed.ReceiptID)
		s.renderUpload(w, http.StatusOK, processed)
		return
	}
	s.afterStep(w, r, session.ID, "process", err)
}

// handleUploadReset clears the session
func (s *Server) handleUploadReset(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession(w, r)
	if err != nil {
		slog.Error("Error loading upload session", "error", err)
		s.renderError(w, http.StatusInternalServerError, "Could not start an upload session.")
		return
	}
	_, err = s.wizard.Reset(session.ID)
	s.afterStep(w, r, session.ID, "reset", err)
}

// handleUploadPreview serves the first page of the staged PDF as PNG
func (s *Server) handleUploadPreview(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	img, err := s.wizard.Preview(c.Value)
	if err != nil {
		if errors.Is(err, upload.ErrNoFile) || errors.Is(err, upload.ErrSessionNotFound) {
			http.NotFound(w, r)
			return
		}
		slog.Error("Error rendering preview", "session", c.Value, "error", err)
		http.Error(w, "Preview unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(img)
}

func (s *Server) runStep(w http.ResponseWriter, r *http.Request, step string, fn func(context.Context, string) (*upload.Session, error)) {
	session, err := s.currentSession(w, r)
	if err != nil {
		slog.Error("Error loading upload session", "error", err)
		s.renderError(w, http.StatusInternalServerError, "Could not start an upload session.")
		return
	}
	_, err = fn(r.Context(), session.ID)
	s.afterStep(w, r, session.ID, step, err)
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, id string, reason error) {
	_, err := s.wizard.Reject(id, reason)
	s.afterStep(w, r, id, "select", err)
}

// afterStep sends the browser back to the wizard. Out-of-order and
// superseded requests are not failures; the page shows the current state.
func (s *Server) afterStep(w http.ResponseWriter, r *http.Request, id, step string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, upload.ErrInvalidTransition), errors.Is(err, upload.ErrStale), errors.Is(err, upload.ErrSessionNotFound):
		slog.Info("Ignoring upload step", "session", id, "step", step, "reason", err)
	default:
		slog.Error("Error running upload step", "session", id, "step", step, "error", err)
		s.renderError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	http.Redirect(w, r, "/upload", http.StatusSeeOther)
}

func (s *Server) renderUpload(w http.ResponseWriter, status int, session *upload.Session) {
	s.render(w, status, "upload", page{Title: "Upload", Nav: "upload", Body: newUploadView(session)})
}
