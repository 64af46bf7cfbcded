package domain_test

import (
	"testing"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
)

func TestTaskStatusConstants(t *testing.T) {
	tests := []struct {
		status domain.TaskStatus
		want   string
	}{
		{domain.TaskQueued, "queued"},
		{domain.TaskProcessing, "processing"},
		{domain.TaskDone, "done"},
		{domain.TaskError, "error"},
		{domain.TaskNeedsReview, "needs_review"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("TaskStatus value = %q, want %q", tt.status, tt.want)
			}
		})
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	for _, s := range []domain.TaskStatus{domain.TaskDone, domain.TaskNeedsReview} {
		t.Run(string(s), func(t *testing.T) {
			if !s.IsTerminal() {
				t.Errorf("IsTerminal(%q) = false, want true", s)
			}
		})
	}
	// error is not terminal: the retry policy still decides its fate.
	for _, s := range []domain.TaskStatus{domain.TaskQueued, domain.TaskProcessing, domain.TaskError} {
		t.Run(string(s), func(t *testing.T) {
			if s.IsTerminal() {
				t.Errorf("IsTerminal(%q) = true, want false", s)
			}
		})
	}
}

func TestContentStatusIsTerminal(t *testing.T) {
	if !domain.ContentPublished.IsTerminal() {
		t.Error("published should be terminal")
	}
	if !domain.ContentNeedsReview.IsTerminal() {
		t.Error("needs_review should be terminal")
	}
	if domain.ContentKeyword.IsTerminal() || domain.ContentPublish.IsTerminal() {
		t.Error("stage statuses must not be terminal")
	}
}

func TestErrorKindRetryable(t *testing.T) {
	if !domain.ErrTransient.Retryable() {
		t.Error("transient failures must be retryable")
	}
	if domain.ErrPermanent.Retryable() {
		t.Error("permanent failures must not be retryable")
	}
	if domain.ErrConfig.Retryable() {
		t.Error("config failures must not be retryable")
	}
}

func TestStageResultTagging(t *testing.T) {
	ok := domain.Succeed([]byte(`{"x":1}`))
	if !ok.OK() {
		t.Error("Succeed result should report OK")
	}
	bad := domain.Fail(domain.ErrTransient, "connection reset")
	if bad.OK() {
		t.Error("Fail result should not report OK")
	}
	if bad.Err.Kind != domain.ErrTransient {
		t.Errorf("Fail kind = %q, want transient", bad.Err.Kind)
	}
}
