package upload

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Session", func() {
	DescribeTable("CanTransition",
		func(from, to Phase, allowed bool) {
			Expect(CanTransition(from, to)).To(Equal(allowed))
		},
		Entry("select a file", PhaseEmpty, PhaseSelected, true),
		Entry("replace the file", PhaseSelected, PhaseSelected, true),
		Entry("upload", PhaseSelected, PhaseUploading, true),
		Entry("upload without a file", PhaseEmpty, PhaseUploading, false),
		Entry("retry upload", PhaseUploadFailed, PhaseUploading, true),
		Entry("validate after upload", PhaseUploaded, PhaseValidating, true),
		Entry("retry validation", PhaseValidateFailed, PhaseValidating, true),
		Entry("skip validation", PhaseUploaded, PhaseProcessing, false),
		Entry("process", PhaseValidated, PhaseProcessing, true),
		Entry("retry processing", PhaseProcessFailed, PhaseProcessing, true),
		Entry("upload while validating", PhaseValidating, PhaseUploading, false),
		Entry("anything after processed", PhaseProcessed, PhaseProcessing, false),
	)

	DescribeTable("State",
		func(phase Phase, upload, validate, process StepState) {
			s := &Session{Phase: phase}
			Expect(s.State(StepUpload)).To(Equal(upload))
			Expect(s.State(StepValidate)).To(Equal(validate))
			Expect(s.State(StepProcess)).To(Equal(process))
		},
		Entry("empty", PhaseEmpty, StepHidden, StepHidden, StepHidden),
		Entry("selected", PhaseSelected, StepPending, StepHidden, StepHidden),
		Entry("uploading", PhaseUploading, StepRunning, StepHidden, StepHidden),
		Entry("upload failed", PhaseUploadFailed, StepFailed, StepHidden, StepHidden),
		Entry("uploaded", PhaseUploaded, StepDone, StepPending, StepHidden),
		Entry("validating", PhaseValidating, StepDone, StepRunning, StepHidden),
		Entry("validate failed", PhaseValidateFailed, StepDone, StepFailed, StepHidden),
		Entry("validated", PhaseValidated, StepDone, StepDone, StepPending),
		Entry("processing", PhaseProcessing, StepDone, StepDone, StepRunning),
		Entry("process failed", PhaseProcessFailed, StepDone, StepDone, StepFailed),
		Entry("processed", PhaseProcessed, StepDone, StepDone, StepDone),
	)

	It("reports busy only while a call is running", func() {
		Expect((&Session{Phase: PhaseUploading}).Busy()).To(BeTrue())
		Expect((&Session{Phase: PhaseValidating}).Busy()).To(BeTrue())
		Expect((&Session{Phase: PhaseProcessing}).Busy()).To(BeTrue())
		Expect((&Session{Phase: PhaseUploadFailed}).Busy()).To(BeFalse())
		Expect((&Session{Phase: PhaseSelected}).Busy()).To(BeFalse())
	})
})

var _ = Describe("file checks", func() {
	Describe("CheckSize", func() {
		It("accepts exactly 10 MiB", func() {
			Expect(CheckSize(MaxFileSize)).To(Succeed())
		})

		It("rejects anything larger", func() {
			err := CheckSize(MaxFileSize + 1)
			Expect(err).To(MatchError("File size must be less than 10MB."))
		})
	})

	Describe("CheckType", func() {
		It("accepts a declared and sniffed PDF", func() {
			Expect(CheckType("application/pdf", pdfBytes)).To(Succeed())
		})

		It("accepts an undeclared PDF", func() {
			Expect(CheckType("", pdfBytes)).To(Succeed())
			Expect(CheckType("application/octet-stream", pdfBytes)).To(Succeed())
		})

		It("rejects a PDF declared as something else", func() {
			Expect(CheckType("image/jpeg", pdfBytes)).To(MatchError("Please select a PDF file only."))
		})

		It("rejects non-PDF content declared as PDF", func() {
			Expect(CheckType("application/pdf", []byte("hello world"))).To(MatchError("Please select a PDF file only."))
		})

		It("rejects a malformed content type", func() {
			Expect(CheckType(";;", pdfBytes)).To(HaveOccurred())
		})

		It("accepts parameters on the content type", func() {
			Expect(CheckType("Application/PDF; name=x.pdf", bytes.Clone(pdfBytes))).To(Succeed())
		})
	})
})
