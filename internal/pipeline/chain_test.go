package pipeline

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/allaspectsdev/webcore/internal/webctx"
)

type fakeMiddleware struct {
	name           string
	priority       int
	requestResult  Result
	requestErr     error
	responseResult Result
	ran            *[]string
}

func (f *fakeMiddleware) Name() string  { return f.name }
func (f *fakeMiddleware) Priority() int { return f.priority }
func (f *fakeMiddleware) Enabled() bool { return true }

func (f *fakeMiddleware) ProcessRequest(ctx context.Context, rc *webctx.Context) (Result, error) {
	*f.ran = append(*f.ran, f.name+".request")
	if f.requestResult == Capture || f.requestResult == Stop {
		rc.WriteRaw(200, "text/plain", []byte(f.name))
	}
	return f.requestResult, f.requestErr
}

func (f *fakeMiddleware) ProcessResponse(ctx context.Context, rc *webctx.Context) (Result, error) {
	*f.ran = append(*f.ran, f.name+".response")
	return f.responseResult, nil
}

func newRC() *webctx.Context {
	r := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	return webctx.New(w, r, "test-request")
}

func TestChain_CaptureLetsLaterSlotsRunInbound(t *testing.T) {
	var ran []string
	a := &fakeMiddleware{name: "a", priority: 10, requestResult: Capture, ran: &ran}
	b := &fakeMiddleware{name: "b", priority: 20, requestResult: Continue, ran: &ran}

	chain := NewChain(a, b)
	rc := newRC()
	outcome, err := chain.ProcessRequest(context.Background(), rc)
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}

	if outcome.Stopped {
		t.Fatal("Capture must not set Stopped")
	}
	if outcome.RanUpTo != 1 {
		t.Fatalf("expected RanUpTo=1 (both slots ran), got %d", outcome.RanUpTo)
	}
	if len(outcome.Captured) != 1 || outcome.Captured[0] != "a" {
		t.Fatalf("expected Captured=[a], got %v", outcome.Captured)
	}
	if len(ran) != 2 || ran[0] != "a.request" || ran[1] != "b.request" {
		t.Fatalf("expected both slots to run inbound, got %v", ran)
	}
}

func TestChain_CaptureGuaranteesOutboundPhase(t *testing.T) {
	var ran []string
	a := &fakeMiddleware{name: "a", priority: 10, requestResult: Capture, responseResult: Continue, ran: &ran}
	b := &fakeMiddleware{name: "b", priority: 20, requestResult: Continue, responseResult: Continue, ran: &ran}

	chain := NewChain(a, b)
	rc := newRC()
	outcome, err := chain.ProcessRequest(context.Background(), rc)
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	ran = nil

	if err := chain.ProcessResponse(context.Background(), rc, outcome.RanUpTo); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	if len(ran) != 2 || ran[0] != "a.response" || ran[1] != "b.response" {
		t.Fatalf("expected both slots' outbound phase to run, got %v", ran)
	}
}

func TestChain_StopHaltsInboundAndOutbound(t *testing.T) {
	var ran []string
	a := &fakeMiddleware{name: "a", priority: 10, requestResult: Stop, ran: &ran}
	b := &fakeMiddleware{name: "b", priority: 20, requestResult: Continue, ran: &ran}

	chain := NewChain(a, b)
	rc := newRC()
	outcome, err := chain.ProcessRequest(context.Background(), rc)
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	if !outcome.Stopped {
		t.Fatal("expected Stopped to be true")
	}
	if len(ran) != 1 || ran[0] != "a.request" {
		t.Fatalf("expected only a to run inbound, got %v", ran)
	}
	if err := chain.ProcessResponse(context.Background(), rc, outcome.RanUpTo); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	if len(ran) != 2 || ran[1] != "a.response" {
		t.Fatalf("expected only a to run outbound, got %v", ran)
	}
}

func TestChain_ProcessRequestErrorStopsDispatch(t *testing.T) {
	var ran []string
	a := &fakeMiddleware{name: "a", priority: 10, requestResult: Continue, requestErr: errors.New("boom"), ran: &ran}
	b := &fakeMiddleware{name: "b", priority: 20, requestResult: Continue, ran: &ran}

	chain := NewChain(a, b)
	rc := newRC()
	_, err := chain.ProcessRequest(context.Background(), rc)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(ran) != 1 {
		t.Fatalf("expected dispatch to stop after the erroring slot, got %v", ran)
	}
}
