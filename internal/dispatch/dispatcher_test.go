package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagegate/pagegate/internal/envelope"
	"github.com/pagegate/pagegate/internal/executor"
)

// fakeExecutor lets each test script the backend's behavior.
type fakeExecutor struct {
	invoke func(ctx context.Context, operation string, body json.RawMessage) (*envelope.Response, error)
}

func (f *fakeExecutor) Invoke(ctx context.Context, operation string, body json.RawMessage) (*envelope.Response, error) {
	return f.invoke(ctx, operation, body)
}

func newTestDispatcher(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()
	if cfg.Operations == nil {
		cfg.Operations = []string{"layout-parsing"}
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func success(result string) *envelope.Response {
	return &envelope.Response{ErrorMsg: "Success", Result: json.RawMessage(result)}
}

func TestSubmit_Success(t *testing.T) {
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
			var fields map[string]any
			if err := json.Unmarshal(body, &fields); err != nil {
				t.Errorf("forwarded body not JSON: %v", err)
			}
			if fields["logId"] == "" {
				t.Error("forwarded body missing logId")
			}
			return success(`{"blocks":[]}`), nil
		},
	}
	d := newTestDispatcher(t, Config{Executor: exec})

	resp := d.Submit(context.Background(), "layout-parsing", json.RawMessage(`{"file":"abc"}`))
	if !resp.OK() {
		t.Fatalf("Submit() = %+v, want success", resp)
	}
	if resp.LogID == "" {
		t.Error("success envelope missing logId")
	}
	if string(resp.Result) != `{"blocks":[]}` {
		t.Errorf("Result = %s", resp.Result)
	}
}

func TestSubmit_UnknownOperation(t *testing.T) {
	d := newTestDispatcher(t, Config{Executor: &fakeExecutor{}})

	resp := d.Submit(context.Background(), "no-such-model", json.RawMessage(`{}`))
	if resp.ErrorCode != 404 {
		t.Errorf("ErrorCode = %d, want 404", resp.ErrorCode)
	}
	if resp.Result != nil {
		t.Error("error envelope carries a result")
	}
}

func TestSubmit_CallerLogIDEchoed(t *testing.T) {
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
			// Backend echoes a different logId; the admission one must win.
			return &envelope.Response{LogID: "backend-id", ErrorMsg: "Success", Result: json.RawMessage(`{}`)}, nil
		},
	}
	d := newTestDispatcher(t, Config{Executor: exec})

	resp := d.Submit(context.Background(), "layout-parsing", json.RawMessage(`{"logId":"caller-7"}`))
	if resp.LogID != "caller-7" {
		t.Errorf("LogID = %q, want caller-supplied %q", resp.LogID, "caller-7")
	}
}

func TestSubmit_Timeout(t *testing.T) {
	tests := []struct {
		name   string
		invoke func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error)
	}{
		{
			name: "local_deadline",
			invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
		{
			name: "backend_reported",
			invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
				return nil, fmt.Errorf("call failed: %w", executor.ErrDeadlineExceeded)
			},
		},
		{
			name: "backend_cancelled",
			invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
				return nil, fmt.Errorf("call failed: %w", context.Canceled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(t, Config{
				Executor: &fakeExecutor{invoke: tt.invoke},
				Timeout:  20 * time.Millisecond,
			})

			resp := d.Submit(context.Background(), "layout-parsing", json.RawMessage(`{"logId":"tmo-1"}`))
			if resp.ErrorCode != 504 {
				t.Errorf("ErrorCode = %d, want 504", resp.ErrorCode)
			}
			if resp.ErrorMsg != "Gateway timeout" {
				t.Errorf("ErrorMsg = %q, want %q", resp.ErrorMsg, "Gateway timeout")
			}
			if resp.LogID != "tmo-1" {
				t.Errorf("LogID = %q, want admission logId %q", resp.LogID, "tmo-1")
			}
		})
	}
}

func TestSubmit_TransportError(t *testing.T) {
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
			return nil, &executor.TransportError{Operation: op, Err: fmt.Errorf("connection refused")}
		},
	}
	d := newTestDispatcher(t, Config{Executor: exec})

	resp := d.Submit(context.Background(), "layout-parsing", json.RawMessage(`{}`))
	if resp.ErrorCode != 500 {
		t.Errorf("ErrorCode = %d, want 500", resp.ErrorCode)
	}
	// Internal detail is logged, never echoed.
	if resp.ErrorMsg != "Internal server error" {
		t.Errorf("ErrorMsg = %q, want generic message", resp.ErrorMsg)
	}
}

func TestSubmit_DomainErrorPassThrough(t *testing.T) {
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
			return &envelope.Response{ErrorCode: 422, ErrorMsg: "file: unsupported format"}, nil
		},
	}
	d := newTestDispatcher(t, Config{Executor: exec})

	resp := d.Submit(context.Background(), "layout-parsing", json.RawMessage(`{"logId":"dom-1"}`))
	if resp.ErrorCode != 422 {
		t.Errorf("ErrorCode = %d, want 422", resp.ErrorCode)
	}
	if resp.ErrorMsg != "file: unsupported format" {
		t.Errorf("ErrorMsg = %q, want backend message verbatim", resp.ErrorMsg)
	}
	if resp.LogID != "dom-1" {
		t.Errorf("LogID = %q, want %q", resp.LogID, "dom-1")
	}
}

func TestSubmit_PanicBecomesEnvelope(t *testing.T) {
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
			panic("backend client bug")
		},
	}
	d := newTestDispatcher(t, Config{Executor: exec})

	resp := d.Submit(context.Background(), "layout-parsing", json.RawMessage(`{"logId":"pan-1"}`))
	if resp.ErrorCode != 500 {
		t.Errorf("ErrorCode = %d, want 500", resp.ErrorCode)
	}
	if resp.LogID != "pan-1" {
		t.Errorf("LogID = %q, want %q", resp.LogID, "pan-1")
	}

	st := d.Status()
	if st.Acquired != st.Released {
		t.Errorf("acquired = %d, released = %d after panic", st.Acquired, st.Released)
	}
}

func TestSubmit_ConcurrencyCap(t *testing.T) {
	const capacity = 4
	const calls = 40

	var current, peak atomic.Int64
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return success(`{}`), nil
		},
	}
	d := newTestDispatcher(t, Config{Executor: exec, MaxConcurrent: capacity})

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := d.Submit(context.Background(), "layout-parsing", json.RawMessage(`{}`))
			if !resp.OK() {
				t.Errorf("Submit() = %+v, want success", resp)
			}
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > capacity {
		t.Errorf("peak concurrency = %d, want <= %d", p, capacity)
	}

	st := d.Status()
	if st.Acquired != calls {
		t.Errorf("acquired = %d, want %d", st.Acquired, calls)
	}
	if st.Acquired != st.Released {
		t.Errorf("acquired = %d, released = %d, want equal", st.Acquired, st.Released)
	}
	if st.InFlight != 0 {
		t.Errorf("in_flight = %d after all calls completed", st.InFlight)
	}
}

// A caller whose context lapses while waiting for admission must not
// end up holding (or leaking) a slot.
func TestSubmit_AdmissionAbandonedOnCancel(t *testing.T) {
	release := make(chan struct{})
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
			<-release
			return success(`{}`), nil
		},
	}
	d := newTestDispatcher(t, Config{Executor: exec, MaxConcurrent: 1})

	holderDone := make(chan envelope.Response, 1)
	go func() {
		holderDone <- d.Submit(context.Background(), "layout-parsing", json.RawMessage(`{}`))
	}()

	// Wait until the holder occupies the only slot.
	for d.Status().InFlight == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp := d.Submit(ctx, "layout-parsing", json.RawMessage(`{"logId":"wait-1"}`))
	if resp.ErrorCode != 504 {
		t.Errorf("ErrorCode = %d, want 504", resp.ErrorCode)
	}
	if resp.LogID != "wait-1" {
		t.Errorf("LogID = %q, want %q", resp.LogID, "wait-1")
	}

	close(release)
	if got := <-holderDone; !got.OK() {
		t.Errorf("holder Submit() = %+v, want success", got)
	}

	st := d.Status()
	// Only the holder ever acquired a slot.
	if st.Acquired != 1 || st.Released != 1 {
		t.Errorf("acquired = %d, released = %d, want 1, 1", st.Acquired, st.Released)
	}
}

// The slot must be released when the deadline lapses even though the
// backend call may still be running in the background.
func TestSubmit_SlotReleasedOnTimeout(t *testing.T) {
	stuck := make(chan struct{})
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, op string, body json.RawMessage) (*envelope.Response, error) {
			<-ctx.Done()
			// Simulate a client that honors cancellation promptly but
			// whose underlying work keeps running elsewhere.
			go func() { <-stuck }()
			return nil, ctx.Err()
		},
	}
	d := newTestDispatcher(t, Config{Executor: exec, MaxConcurrent: 1, Timeout: 10 * time.Millisecond})

	resp := d.Submit(context.Background(), "layout-parsing", json.RawMessage(`{}`))
	if resp.ErrorCode != 504 {
		t.Errorf("ErrorCode = %d, want 504", resp.ErrorCode)
	}

	st := d.Status()
	if st.InFlight != 0 {
		t.Errorf("in_flight = %d, want 0 (slot leaked)", st.InFlight)
	}
	close(stuck)
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with no executor: error = nil, want error")
	}

	d := newTestDispatcher(t, Config{Executor: &fakeExecutor{}})
	if d.capacity != DefaultMaxConcurrent {
		t.Errorf("capacity = %d, want default %d", d.capacity, DefaultMaxConcurrent)
	}
	if d.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want default %v", d.timeout, DefaultTimeout)
	}
}
