package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/san-kum/squat-coach-cv/server/analysis"
	"github.com/san-kum/squat-coach-cv/server/framestore"
	"github.com/san-kum/squat-coach-cv/server/ml/mltest"
	"github.com/san-kum/squat-coach-cv/server/models"
	"github.com/san-kum/squat-coach-cv/server/processor"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  *framestore.Store
	fake   *mltest.Fake
	proc   *processor.FrameProcessor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	fake := &mltest.Fake{}
	store := framestore.New()

	cfg := processor.DefaultProcessorConfig()
	cfg.CacheTTL = 0
	proc, err := processor.NewFrameProcessor(fake, fake, store, nil, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFrameProcessor() failed: %v", err)
	}
	t.Cleanup(func() { proc.Shutdown(time.Second) })

	upload := NewUploadHandler(proc, zap.NewNop())
	stream := NewStreamHandler(proc, store, StreamConfig{PollInterval: 20 * time.Millisecond, JPEGQuality: 90}, zap.NewNop())
	ws := NewWebSocketHandler(proc, nil, zap.NewNop())

	r := gin.New()
	r.GET("/", upload.Index)
	r.POST("/upload_frame", upload.UploadFrame)
	r.GET("/video_feed", stream.VideoFeed)
	r.GET("/ws", ws.HandleWebSocket)
	r.GET("/api/v1/stats", stream.GetStats)

	return &testServer{router: r, store: store, fake: fake, proc: proc}
}

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func pngDataURL(t *testing.T, img image.Image) string {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() failed: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func postFrame(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/upload_frame", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "/video_feed") {
		t.Error("viewer page should embed the video feed")
	}
}

func TestUploadFrameEmptyResult(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(models.FrameUploadRequest{Image: pngDataURL(t, solidImage(1, 1, color.NRGBA{A: 255}))})
	w := postFrame(ts.router, string(body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}

	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result["hand_detected"] != false || result["feedback"] != "" {
		t.Errorf("unexpected result %v", result)
	}
	if _, _, ok := ts.store.Consume(); !ok {
		t.Error("expected a published frame")
	}
}

func TestUploadFrameFeedback(t *testing.T) {
	ts := newTestServer(t)
	ts.fake.SetPose(mltest.Legs([2]float64{0.5, 0.4}, [2]float64{0.5, 0.6}, [2]float64{0.5, 0.8}))
	ts.fake.SetHands([]models.HandLandmarks{mltest.Hand()})

	body, _ := json.Marshal(models.FrameUploadRequest{Image: pngDataURL(t, solidImage(64, 64, color.NRGBA{A: 255}))})
	w := postFrame(ts.router, string(body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}

	var result models.FrameResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !result.HandDetected || result.Feedback != analysis.FeedbackStandTall {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestUploadFrameErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		detectErr  bool
		wantStatus int
		wantBody   string
	}{
		{"missing key", `{}`, false, http.StatusBadRequest, msgNoImage},
		{"empty image", `{"image": ""}`, false, http.StatusBadRequest, msgNoImage},
		{"not json", `nope`, false, http.StatusBadRequest, msgNoImage},
		{"no comma", `{"image": "abc"}`, false, http.StatusInternalServerError, msgProcessingError},
		{"bad base64", `{"image": "data:image/png;base64,!!!"}`, false, http.StatusInternalServerError, msgProcessingError},
		{"not an image", `{"image": "data:image/png;base64,aGVsbG8="}`, false, http.StatusInternalServerError, msgProcessingError},
		{"detector failure", "", true, http.StatusInternalServerError, msgProcessingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			body := tt.body
			if tt.detectErr {
				ts.fake.SetError(io.ErrUnexpectedEOF)
				b, _ := json.Marshal(models.FrameUploadRequest{Image: pngDataURL(t, solidImage(2, 2, color.NRGBA{A: 255}))})
				body = string(b)
			}

			w := postFrame(ts.router, body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
				t.Errorf("errors are plain text, got %q", w.Header().Get("Content-Type"))
			}
			if _, _, ok := ts.store.Consume(); ok {
				t.Error("failed uploads must not publish")
			}
		})
	}
}

func TestVideoFeedStreamsLatestFrame(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ts.store.Publish(solidImage(16, 8, color.NRGBA{R: 255, A: 255}))
	ts.store.Publish(solidImage(32, 16, color.NRGBA{B: 255, A: 255}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/video_feed", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /video_feed failed: %v", err)
	}
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("bad content type: %v", err)
	}
	if mediaType != "multipart/x-mixed-replace" || params["boundary"] != "frame" {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	mr := multipart.NewReader(resp.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart() failed: %v", err)
	}
	if part.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("part Content-Type = %q", part.Header.Get("Content-Type"))
	}

	img, err := jpeg.Decode(part)
	if err != nil {
		t.Fatalf("jpeg.Decode() failed: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 16 {
		t.Errorf("expected the latest frame, got %v", img.Bounds())
	}
	r, _, b, _ := img.At(16, 8).RGBA()
	if b>>8 < 200 || r>>8 > 60 {
		t.Errorf("expected a blue frame, got r=%d b=%d", r>>8, b>>8)
	}
}

func TestVideoFeedWaitsForFirstFrame(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/video_feed", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /video_feed failed: %v", err)
	}
	defer resp.Body.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		ts.store.Publish(solidImage(4, 4, color.NRGBA{G: 255, A: 255}))
	}()

	mr := multipart.NewReader(resp.Body, "frame")
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart() failed: %v", err)
	}
	img, err := jpeg.Decode(part)
	if err != nil {
		t.Fatalf("jpeg.Decode() failed: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("unexpected frame %v", img.Bounds())
	}
}

func TestWebSocketFrame(t *testing.T) {
	ts := newTestServer(t)
	ts.fake.SetHands([]models.HandLandmarks{mltest.Hand()})
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	send := func(msg models.ClientMessage) map[string]any {
		t.Helper()
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("WriteJSON() failed: %v", err)
		}
		var reply map[string]any
		if err := conn.ReadJSON(&reply); err != nil {
			t.Fatalf("ReadJSON() failed: %v", err)
		}
		return reply
	}

	reply := send(models.ClientMessage{Type: "frame", Data: pngDataURL(t, solidImage(8, 8, color.NRGBA{A: 255}))})
	if reply["type"] != "result" {
		t.Fatalf("unexpected reply %v", reply)
	}
	data, _ := reply["data"].(map[string]any)
	if data["hand_detected"] != true {
		t.Errorf("expected hand detection, got %v", data)
	}

	if reply := send(models.ClientMessage{Type: "ping"}); reply["type"] != "pong" {
		t.Errorf("expected pong, got %v", reply)
	}

	if reply := send(models.ClientMessage{Type: "frame", Data: ""}); reply["type"] != "error" {
		t.Errorf("expected error, got %v", reply)
	}

	if reply := send(models.ClientMessage{Type: "bogus"}); reply["type"] != "error" {
		t.Errorf("expected error, got %v", reply)
	}
}

func TestGetStats(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(models.FrameUploadRequest{Image: pngDataURL(t, solidImage(2, 2, color.NRGBA{A: 255}))})
	postFrame(ts.router, string(body))

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var stats struct {
		Processor processor.ProcessorStats `json:"processor"`
		Store     framestore.Stats         `json:"store"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if stats.Processor.SuccessfullyProcessed != 1 || stats.Store.Publishes != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestVideoFeedEndsOnClose(t *testing.T) {
	fake := &mltest.Fake{}
	store := framestore.New()
	proc, err := processor.NewFrameProcessor(fake, fake, store, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFrameProcessor() failed: %v", err)
	}
	defer proc.Shutdown(time.Second)

	stream := NewStreamHandler(proc, store, StreamConfig{PollInterval: 10 * time.Millisecond}, zap.NewNop())
	r := gin.New()
	r.GET("/video_feed", stream.VideoFeed)
	srv := httptest.NewServer(r)
	defer srv.Close()

	store.Publish(solidImage(4, 4, color.NRGBA{A: 255}))

	resp, err := http.Get(srv.URL + "/video_feed")
	if err != nil {
		t.Fatalf("GET /video_feed failed: %v", err)
	}
	defer resp.Body.Close()

	stream.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, resp.Body)
		done <- err
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("video feed did not end after Close")
	}
}
