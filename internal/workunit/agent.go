package workunit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
)

// agentEnvelope is the response contract of the agent service:
// {"status": "done"|"error", "output": {...}, "errors": ["..."]}.
type agentEnvelope struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Errors []string        `json:"errors"`
}

// AgentClient invokes one content agent over HTTP. Each pipeline stage gets
// its own AgentClient pointed at the agent's endpoint; the orchestrator
// treats the call as an opaque, slow, failure-prone remote invocation.
type AgentClient struct {
	stage    string
	endpoint string
	client   *http.Client
}

// NewAgentClient builds a client for the given stage. baseURL is the agent
// service root; the stage name is the path segment (e.g. POST {base}/keyword).
func NewAgentClient(stage, baseURL string, client *http.Client) *AgentClient {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &AgentClient{
		stage:    stage,
		endpoint: strings.TrimSuffix(baseURL, "/") + "/" + stage,
		client:   client,
	}
}

func (a *AgentClient) Stage() string { return a.stage }

// Invoke POSTs the input snapshot and returns the agent's output. Failures
// are classified by HTTP status: 408/429/5xx are transient, any other 4xx is
// a permanent input error.
func (a *AgentClient) Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	ctx, span := otel.Tracer("workunit").Start(ctx, "agent.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.stage", a.stage),
		attribute.String("agent.endpoint", a.endpoint),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(input))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request failed")
		return nil, &domain.StageError{Kind: domain.ErrConfig, Message: fmt.Sprintf("build agent request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "http call failed")
		return nil, &domain.StageError{Kind: domain.ErrTransient, Message: fmt.Sprintf("agent %s: %v", a.stage, err)}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		span.RecordError(err)
		return nil, &domain.StageError{Kind: domain.ErrTransient, Message: fmt.Sprintf("read agent response: %v", err)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		kind := classifyStatus(resp.StatusCode)
		err := &domain.StageError{
			Kind:    kind,
			Message: fmt.Sprintf("agent %s returned status %d: %s", a.stage, resp.StatusCode, truncate(body, 200)),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad status code")
		return nil, err
	}

	var env agentEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		// Malformed output is itself a failure; the orchestrator never
		// repairs agent responses.
		err := &domain.StageError{Kind: domain.ErrPermanent, Message: fmt.Sprintf("malformed agent response: %v", err)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response")
		return nil, err
	}

	if env.Status != "done" {
		msg := strings.Join(env.Errors, "; ")
		if msg == "" {
			msg = fmt.Sprintf("agent %s reported status %q", a.stage, env.Status)
		}
		err := &domain.StageError{Kind: domain.ErrTransient, Message: msg}
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent reported error")
		return nil, err
	}

	return env.Output, nil
}

func classifyStatus(code int) domain.ErrorKind {
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return domain.ErrTransient
	case code >= http.StatusInternalServerError:
		return domain.ErrTransient
	default:
		return domain.ErrPermanent
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
