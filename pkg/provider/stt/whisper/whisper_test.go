package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/solace/pkg/provider/stt"
	"github.com/MrWong99/solace/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer answers POST /inference with {"text": responseText} and
// counts requests in callCount when non-nil.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// makeSpeechPCM generates a 440 Hz sine wave whose RMS (~7071) is well above
// the silence threshold.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

var speechCfg = stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en-US"}

func mustStartStream(t *testing.T, p stt.Provider, cfg stt.StreamConfig) stt.SessionHandle {
	t.Helper()
	h, err := p.StartStream(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	return h
}

func waitFinal(t *testing.T, h stt.SessionHandle) stt.Transcript {
	t.Helper()
	select {
	case tr, ok := <-h.Finals():
		if !ok {
			t.Fatalf("Finals closed without a transcript (err = %v)", h.Err())
		}
		return tr
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final transcript")
	}
	return stt.Transcript{}
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestStartStream_CancelledContext_ReturnsError(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.StartStream(ctx, speechCfg); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

// ---- silence detection / buffering ------------------------------------------

func TestSilenceAloneDoesNotTriggerInference(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newMockServer(t, "unexpected", &calls)

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(50))
	h := mustStartStream(t, p, speechCfg)

	_ = h.SendAudio(makeSilencePCM(16000))
	time.Sleep(150 * time.Millisecond)
	h.Close()

	if n := calls.Load(); n != 0 {
		t.Errorf("inference called %d time(s) for silence-only audio; want 0", n)
	}
}

func TestSpeechFollowedBySilenceTriggersInference(t *testing.T) {
	t.Parallel()
	const wantText = "I feel a bit lonely tonight"
	srv := newMockServer(t, wantText, nil)

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := mustStartStream(t, p, speechCfg)
	defer h.Close()

	if err := h.SendAudio(makeSpeechPCM(1600)); err != nil {
		t.Fatalf("SendAudio (speech): %v", err)
	}
	if err := h.SendAudio(makeSilencePCM(1600)); err != nil {
		t.Fatalf("SendAudio (silence): %v", err)
	}

	tr := waitFinal(t, h)
	if tr.Text != wantText {
		t.Errorf("Text = %q; want %q", tr.Text, wantText)
	}
	if !tr.IsFinal {
		t.Error("IsFinal = false; want true")
	}
	if tr.Duration != 200*time.Millisecond {
		t.Errorf("Duration = %v; want 200ms", tr.Duration)
	}
}

func TestPartials_OnlyWithInterimResults(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		interim     bool
		wantPartial bool
	}{
		{name: "disabled", interim: false, wantPartial: false},
		{name: "enabled", interim: true, wantPartial: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newMockServer(t, "okay", nil)
			p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
			cfg := speechCfg
			cfg.InterimResults = tt.interim
			h := mustStartStream(t, p, cfg)

			_ = h.SendAudio(makeSpeechPCM(1600))
			_ = h.SendAudio(makeSilencePCM(1600))
			waitFinal(t, h)
			h.Close()

			var partials int
			for range h.Partials() {
				partials++
			}
			if got := partials > 0; got != tt.wantPartial {
				t.Errorf("got %d partials; want partial = %v", partials, tt.wantPartial)
			}
		})
	}
}

func TestMaxBufferExceededForcesFlush(t *testing.T) {
	t.Parallel()
	const wantText = "can we talk"
	srv := newMockServer(t, wantText, nil)

	p, _ := whisper.New(srv.URL,
		whisper.WithSilenceThresholdMs(10_000),
		whisper.WithMaxBufferDurationMs(200),
	)
	h := mustStartStream(t, p, speechCfg)
	defer h.Close()

	if err := h.SendAudio(makeSpeechPCM(3360)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if tr := waitFinal(t, h); tr.Text != wantText {
		t.Errorf("Text = %q; want %q", tr.Text, wantText)
	}
}

func TestRequest_SendsBaseLanguageAndWAV(t *testing.T) {
	t.Parallel()
	var (
		mu       sync.Mutex
		language string
		riff     string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		head := make([]byte, 4)
		_, _ = f.Read(head)
		mu.Lock()
		language = r.FormValue("language")
		riff = string(head)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hi"})
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := mustStartStream(t, p, speechCfg)
	defer h.Close()
	_ = h.SendAudio(makeSpeechPCM(1600))
	_ = h.SendAudio(makeSilencePCM(1600))
	waitFinal(t, h)

	mu.Lock()
	defer mu.Unlock()
	if language != "en" {
		t.Errorf("language field = %q; want %q", language, "en")
	}
	if riff != "RIFF" {
		t.Errorf("file header = %q; want RIFF", riff)
	}
}

func TestBlankAudioMarkerProducesNoTranscript(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, " [BLANK_AUDIO] ", nil)

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := mustStartStream(t, p, speechCfg)

	_ = h.SendAudio(makeSpeechPCM(1600))
	_ = h.SendAudio(makeSilencePCM(1600))
	time.Sleep(300 * time.Millisecond)
	h.Close()

	for tr := range h.Finals() {
		t.Errorf("unexpected transcript %q", tr.Text)
	}
}

// ---- session close ----------------------------------------------------------

func TestClose_ClosesChannels(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, "", nil)
	p, _ := whisper.New(srv.URL)
	h := mustStartStream(t, p, speechCfg)
	h.Close()

	for name, ch := range map[string]<-chan stt.Transcript{"Partials": h.Partials(), "Finals": h.Finals()} {
		select {
		case _, open := <-ch:
			if open {
				t.Errorf("%s channel should be closed after Close()", name)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s channel to close", name)
		}
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, "", nil)
	p, _ := whisper.New(srv.URL)
	h := mustStartStream(t, p, speechCfg)

	if err := h.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}
	if err := h.Err(); err != nil {
		t.Errorf("Err() after clean close = %v; want nil", err)
	}
}

func TestSendAudio_AfterClose_ReturnsError(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, "", nil)
	p, _ := whisper.New(srv.URL)
	h := mustStartStream(t, p, speechCfg)
	h.Close()

	if err := h.SendAudio(makeSpeechPCM(100)); err == nil {
		t.Fatal("SendAudio after Close() should return an error")
	}
}

func TestClose_FlushesRemainingBuffer(t *testing.T) {
	t.Parallel()
	const wantText = "thank you for listening"
	var calls atomic.Int32
	srv := newMockServer(t, wantText, &calls)

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(60_000))
	h := mustStartStream(t, p, speechCfg)

	_ = h.SendAudio(makeSpeechPCM(1600))
	time.Sleep(50 * time.Millisecond)
	h.Close()

	got := 0
	for tr := range h.Finals() {
		got++
		if tr.Text != wantText {
			t.Errorf("close-flush transcript = %q; want %q", tr.Text, wantText)
		}
	}
	if got != 1 || calls.Load() != 1 {
		t.Errorf("got %d transcripts from %d requests; want 1 and 1", got, calls.Load())
	}
}

func TestContextCancel_EndsWithoutFlush(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newMockServer(t, "never", &calls)

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(60_000))
	ctx, cancel := context.WithCancel(context.Background())
	h, err := p.StartStream(ctx, speechCfg)
	if err != nil {
		t.Fatal(err)
	}
	_ = h.SendAudio(makeSpeechPCM(1600))
	time.Sleep(50 * time.Millisecond)
	cancel()

	for range h.Finals() {
		t.Error("unexpected transcript after cancel")
	}
	h.Close()
	if n := calls.Load(); n != 0 {
		t.Errorf("inference called %d times after cancel; want 0", n)
	}
}

// ---- error handling ---------------------------------------------------------

func TestInference_ServerError_EndsSessionWithErr(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := mustStartStream(t, p, speechCfg)
	defer h.Close()

	_ = h.SendAudio(makeSpeechPCM(1600))
	_ = h.SendAudio(makeSilencePCM(1600))

	select {
	case tr, open := <-h.Finals():
		if open {
			t.Fatalf("expected no finals on server error, got %q", tr.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after inference failure")
	}
	if h.Err() == nil {
		t.Error("Err() = nil after inference failure; want error")
	}
	if err := h.SendAudio(makeSpeechPCM(10)); err == nil {
		t.Error("SendAudio after failure should return an error")
	}
}

// ---- concurrent use ---------------------------------------------------------

func TestConcurrentSendAudio_DoesNotRace(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, "hello", nil)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := mustStartStream(t, p, speechCfg)
	defer h.Close()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				_ = h.SendAudio(makeSpeechPCM(160))
			}
		}()
	}
	wg.Wait()
}
