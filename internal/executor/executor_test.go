package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	"github.com/artisanal-iq/wordpress-content-generator/internal/workunit"
)

type singleUnit struct {
	unit workunit.WorkUnit
}

func (r singleUnit) WorkUnitFor(stage string) (workunit.WorkUnit, error) {
	if stage != r.unit.Stage() {
		return nil, &domain.UnknownStageError{Stage: stage}
	}
	return r.unit, nil
}

func testPiece() *domain.ContentPiece {
	return &domain.ContentPiece{ID: "content-1", Status: domain.ContentDraft}
}

func TestExecutor_Success(t *testing.T) {
	unit := workunit.Func{Name: "draft", Fn: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"draft_html":"<p>hi</p>"}`), nil
	}}
	e := New(singleUnit{unit}, time.Second)

	result := e.Execute(context.Background(), testPiece(), "draft", nil)
	require.True(t, result.OK())
	assert.JSONEq(t, `{"draft_html":"<p>hi</p>"}`, string(result.Output))
}

func TestExecutor_UnknownStage_ConfigError(t *testing.T) {
	unit := workunit.Func{Name: "draft", Fn: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	}}
	e := New(singleUnit{unit}, time.Second)

	result := e.Execute(context.Background(), testPiece(), "proofread", nil)
	require.False(t, result.OK())
	assert.Equal(t, domain.ErrConfig, result.Err.Kind)
}

func TestExecutor_StageErrorKindPreserved(t *testing.T) {
	unit := workunit.Func{Name: "draft", Fn: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, &domain.StageError{Kind: domain.ErrPermanent, Message: "missing draft_text"}
	}}
	e := New(singleUnit{unit}, time.Second)

	result := e.Execute(context.Background(), testPiece(), "draft", nil)
	require.False(t, result.OK())
	assert.Equal(t, domain.ErrPermanent, result.Err.Kind)
	assert.Contains(t, result.Err.Message, "missing draft_text")
}

func TestExecutor_PlainErrorIsTransient(t *testing.T) {
	unit := workunit.Func{Name: "draft", Fn: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("connection reset")
	}}
	e := New(singleUnit{unit}, time.Second)

	result := e.Execute(context.Background(), testPiece(), "draft", nil)
	require.False(t, result.OK())
	assert.Equal(t, domain.ErrTransient, result.Err.Kind)
}

func TestExecutor_Timeout_Transient(t *testing.T) {
	unit := workunit.Func{Name: "draft", Fn: func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	e := New(singleUnit{unit}, 20*time.Millisecond)

	result := e.Execute(context.Background(), testPiece(), "draft", nil)
	require.False(t, result.OK())
	assert.Equal(t, domain.ErrTransient, result.Err.Kind)
}

func TestExecutor_InvalidOutputJSON_Permanent(t *testing.T) {
	unit := workunit.Func{Name: "draft", Fn: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{not json`), nil
	}}
	e := New(singleUnit{unit}, time.Second)

	result := e.Execute(context.Background(), testPiece(), "draft", nil)
	require.False(t, result.OK())
	assert.Equal(t, domain.ErrPermanent, result.Err.Kind)
}
