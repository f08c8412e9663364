package onebot

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashita-ai/kehai/internal/status"
)

// fastConfig keeps backoff and settle delays out of the test runtime.
func fastConfig() AdapterConfig {
	return AdapterConfig{
		Retries:     3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		SettleDelay: time.Millisecond,
		CacheTTL:    time.Minute,
	}
}

// backendState scripts a mock OneBot backend.
type backendState struct {
	setReplies   []string // consumed per set_* call; "" = empty body
	setCalls     atomic.Int32
	statusReply  string
	statusCalls  atomic.Int32
	loginReply   string
	loginCalls   atomic.Int32
	lastSetExt   atomic.Int64
	lastSetPath  atomic.Value
	lastWording  atomic.Value
	lastFaceType atomic.Int64
}

func (b *backendState) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/set_online_status", "/set_diy_online_status":
			b.lastSetPath.Store(r.URL.Path)
			var params map[string]any
			_ = json.NewDecoder(r.Body).Decode(&params)
			if ext, ok := params["ext_status"].(float64); ok {
				b.lastSetExt.Store(int64(ext))
			}
			if wording, ok := params["wording"].(string); ok {
				b.lastWording.Store(wording)
			}
			if ft, ok := params["face_type"].(float64); ok {
				b.lastFaceType.Store(int64(ft))
			}
			n := int(b.setCalls.Add(1)) - 1
			reply := ""
			if n < len(b.setReplies) {
				reply = b.setReplies[n]
			}
			if reply == "" {
				w.WriteHeader(http.StatusOK)
				return
			}
			_, _ = w.Write([]byte(reply))
		case "/nc_get_user_status":
			b.statusCalls.Add(1)
			_, _ = w.Write([]byte(b.statusReply))
		case "/get_login_info":
			b.loginCalls.Add(1)
			_, _ = w.Write([]byte(b.loginReply))
		default:
			t.Errorf("unexpected action: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}
}

const okReply = `{"status":"ok","retcode":0,"data":null}`

func newTestAdapter(t *testing.T, b *backendState) *Adapter {
	t.Helper()
	client, _ := newTestClient(t, b.handler(t))
	a := NewAdapter(client, fastConfig(), testLogger())
	t.Cleanup(a.Close)
	return a
}

func TestPushFirstAttempt(t *testing.T) {
	b := &backendState{setReplies: []string{okReply}}
	a := newTestAdapter(t, b)

	if !a.Push(context.Background(), status.NewStandard(status.MainBusy, 1028, status.OriginSchedule)) {
		t.Fatal("push failed")
	}
	if got := b.setCalls.Load(); got != 1 {
		t.Errorf("set calls = %d, want 1", got)
	}
	if b.lastSetPath.Load() != "/set_online_status" {
		t.Errorf("standard push used %v", b.lastSetPath.Load())
	}
}

func TestPushCustomCallShape(t *testing.T) {
	b := &backendState{setReplies: []string{okReply}}
	a := newTestAdapter(t, b)

	st := status.NewCustom("coding", status.EmojiThreshold+1, status.OriginOverride)
	if !a.Push(context.Background(), st) {
		t.Fatal("push failed")
	}
	if b.lastSetPath.Load() != "/set_diy_online_status" {
		t.Errorf("custom push used %v", b.lastSetPath.Load())
	}
	if b.lastWording.Load() != "coding" {
		t.Errorf("wording = %v", b.lastWording.Load())
	}
	if b.lastFaceType.Load() != status.IconCategoryEmoji {
		t.Errorf("face_type = %d, want emoji category", b.lastFaceType.Load())
	}
}

func TestPushRetriesUntilSuccess(t *testing.T) {
	rejection := `{"status":"failed","retcode":1400,"message":"nope"}`
	b := &backendState{setReplies: []string{rejection, rejection, okReply}}
	a := newTestAdapter(t, b)

	if !a.Push(context.Background(), status.NewStandard(status.MainOnline, 0, status.OriginSchedule)) {
		t.Fatal("push failed despite eventual success")
	}
	if got := b.setCalls.Load(); got != 3 {
		t.Errorf("set calls = %d, want 3", got)
	}
}

func TestPushReconciliationOnNoResponse(t *testing.T) {
	// Every push attempt returns an empty body, but the read-back shows the
	// target state: the backend applied the change without acknowledging it.
	b := &backendState{
		setReplies:  []string{"", "", ""},
		loginReply:  `{"status":"ok","retcode":0,"data":{"user_id":123456,"nickname":"kehai"}}`,
		statusReply: `{"status":"ok","retcode":0,"data":{"status":50,"ext_status":1028}}`,
	}
	a := newTestAdapter(t, b)

	if !a.Push(context.Background(), status.NewStandard(status.MainBusy, 1028, status.OriginSchedule)) {
		t.Fatal("push should succeed via reconciliation")
	}
	// The first no-response attempt already reconciles; no retries needed.
	if got := b.setCalls.Load(); got != 1 {
		t.Errorf("set calls = %d, want 1", got)
	}
	if got := b.statusCalls.Load(); got < 1 {
		t.Error("reconciliation never read presence back")
	}
}

func TestPushCustomReconcilesAgainstSentinel(t *testing.T) {
	// Custom pushes cannot be verified field-by-field: the backend reports
	// the 2000 sentinel instead of the wording. Seeing the sentinel counts.
	b := &backendState{
		setReplies:  []string{"", "", ""},
		loginReply:  `{"status":"ok","retcode":0,"data":{"user_id":123456}}`,
		statusReply: `{"status":"ok","retcode":0,"data":{"status":10,"ext_status":2000}}`,
	}
	a := newTestAdapter(t, b)

	if !a.Push(context.Background(), status.NewCustom("gaming", 23, status.OriginOverride)) {
		t.Fatal("custom push should reconcile against the sentinel")
	}
	// Mid-loop reconciliation is standard-only; custom reconciles once after
	// retries are exhausted.
	if got := b.setCalls.Load(); got != 3 {
		t.Errorf("set calls = %d, want 3", got)
	}
}

func TestPushFailsWhenReconciliationMismatches(t *testing.T) {
	b := &backendState{
		setReplies:  []string{"", "", ""},
		loginReply:  `{"status":"ok","retcode":0,"data":{"user_id":123456}}`,
		statusReply: `{"status":"ok","retcode":0,"data":{"status":10,"ext_status":0}}`,
	}
	a := newTestAdapter(t, b)

	if a.Push(context.Background(), status.NewStandard(status.MainBusy, 1028, status.OriginSchedule)) {
		t.Fatal("push should fail when the backend never shows the target state")
	}
}

func TestUserStatusCache(t *testing.T) {
	b := &backendState{
		statusReply: `{"status":"ok","retcode":0,"data":{"status":30,"ext_status":0}}`,
	}
	a := newTestAdapter(t, b)
	ctx := context.Background()

	first, err := a.UserStatus(ctx, 42, true)
	if err != nil {
		t.Fatal(err)
	}
	if first.MainCode != status.MainAway {
		t.Errorf("main code = %d, want away", first.MainCode)
	}

	if _, err := a.UserStatus(ctx, 42, true); err != nil {
		t.Fatal(err)
	}
	if got := b.statusCalls.Load(); got != 1 {
		t.Errorf("backend reads = %d, want 1 (second read should come from cache)", got)
	}

	// Cache bypass must hit the backend.
	if _, err := a.UserStatus(ctx, 42, false); err != nil {
		t.Fatal(err)
	}
	if got := b.statusCalls.Load(); got != 2 {
		t.Errorf("backend reads = %d, want 2 after bypass", got)
	}
}

func TestSelfIDCachedIndefinitely(t *testing.T) {
	b := &backendState{
		loginReply: `{"status":"ok","retcode":0,"data":{"user_id":987654}}`,
	}
	a := newTestAdapter(t, b)
	ctx := context.Background()

	id, err := a.SelfID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != 987654 {
		t.Errorf("self id = %d", id)
	}

	if _, err := a.SelfID(ctx); err != nil {
		t.Fatal(err)
	}
	if got := b.loginCalls.Load(); got != 1 {
		t.Errorf("login info calls = %d, want 1", got)
	}
}
