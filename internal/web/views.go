package web

import (
	"time"

	"github.com/zombor/receipts-web/internal/receipt"
	"github.com/zombor/receipts-web/internal/upload"
)

// page is the data handed to every template
type page struct {
	Title string
	Nav   string
	Body  any
}

type dashboardView struct {
	Stats  receipt.Stats
	Recent []*receipt.Receipt
	Error  string
}

type listView struct {
	Query    string
	Status   string
	Statuses []string
	Receipts []*receipt.Receipt
	Error    string
	RetryURL string
}

type detailView struct {
	Receipt *receipt.Receipt
	Notice  string
	Error   string
}

type uploadView struct {
	Session  *upload.Session
	Upload   upload.StepState
	Validate upload.StepState
	Process  upload.StepState
	// RedirectTo is set once processing succeeded
	RedirectTo    string
	RedirectAfter time.Duration
	HasPreview    bool
}

type errorView struct {
	Message string
}

var listStatuses = []string{
	receipt.StatusAll,
	string(receipt.StatusProcessing),
	string(receipt.StatusCompleted),
	string(receipt.StatusFailed),
}

func newUploadView(s *upload.Session) uploadView {
	v := uploadView{
		Session:    s,
		Upload:     s.State(upload.StepUpload),
		Validate:   s.State(upload.StepValidate),
		Process:    s.State(upload.StepProcess),
		HasPreview: s.File != nil && s.File.Pages > 0,
	}
	if s.Phase == upload.PhaseProcessed && s.ReceiptID != "" {
		v.RedirectTo = "/receipts/" + s.ReceiptID
		v.RedirectAfter = upload.RedirectDelay
	}
	return v
}
