package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/squat-coach-cv/server/codec"
	"github.com/san-kum/squat-coach-cv/server/framestore"
	"github.com/san-kum/squat-coach-cv/server/processor"
	"go.uber.org/zap"
)

const mjpegBoundary = "frame"

var errNoFrame = errors.New("no frame published")

type StreamHandler struct {
	processor    *processor.FrameProcessor
	store        *framestore.Store
	logger       *zap.Logger
	pollInterval time.Duration
	jpegQuality  int

	activeViewers atomic.Int64
	framesSent    atomic.Int64

	closing   chan struct{}
	closeOnce sync.Once
}

type StreamConfig struct {
	PollInterval time.Duration
	JPEGQuality  int
}

func NewStreamHandler(processor *processor.FrameProcessor, store *framestore.Store, cfg StreamConfig, logger *zap.Logger) *StreamHandler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = codec.DefaultJPEGQuality
	}

	return &StreamHandler{
		processor:    processor,
		store:        store,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		jpegQuality:  cfg.JPEGQuality,
		closing:      make(chan struct{}),
	}
}

// Close ends every open video feed. http.Server.Shutdown does not cancel
// streaming requests on its own.
func (h *StreamHandler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// VideoFeed streams the latest annotated frame as multipart MJPEG until the
// client goes away. Nothing is sent before the first publish.
func (h *StreamHandler) VideoFeed(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go func() {
		select {
		case <-h.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	viewers := h.activeViewers.Add(1)
	defer h.activeViewers.Add(-1)
	h.logger.Info("Video feed client connected",
		zap.String("client_ip", c.ClientIP()),
		zap.Int64("viewers", viewers))

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	var (
		lastSeq uint64
		buf     bytes.Buffer
	)

	c.Stream(func(w io.Writer) bool {
		frame, seq, err := h.nextFrame(ctx, lastSeq)
		if err != nil {
			return false
		}
		lastSeq = seq

		buf.Reset()
		if err := codec.EncodeJPEG(&buf, frame, h.jpegQuality); err != nil {
			h.logger.Error("Failed to encode stream frame", zap.Error(err))
			return false
		}

		if err := writePart(w, buf.Bytes()); err != nil {
			h.logger.Debug("Video feed write failed", zap.Error(err))
			return false
		}

		h.framesSent.Add(1)
		return true
	})

	h.logger.Info("Video feed client disconnected", zap.String("client_ip", c.ClientIP()))
}

// nextFrame blocks until there is something to send. The first frame waits
// for the first publish; afterwards a newer frame is sent as soon as it
// arrives and the current one is repeated every poll interval.
func (h *StreamHandler) nextFrame(ctx context.Context, after uint64) (*image.NRGBA, uint64, error) {
	if after == 0 {
		return h.store.Wait(ctx, 0)
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.pollInterval)
	defer cancel()

	frame, seq, err := h.store.Wait(waitCtx, after)
	if err == nil {
		return frame, seq, nil
	}
	if ctx.Err() != nil {
		return nil, after, ctx.Err()
	}

	frame, seq, ok := h.store.Consume()
	if !ok {
		return nil, after, errNoFrame
	}
	return frame, seq, nil
}

func writePart(w io.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", mjpegBoundary); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

func (h *StreamHandler) GetStats(c *gin.Context) {
	processorStats := h.processor.GetStats()

	metrics := gin.H{
		"uptime_seconds": time.Since(processorStats.StartTime).Seconds(),
	}
	if processorStats.TotalProcessed > 0 {
		metrics["success_rate"] = float64(processorStats.SuccessfullyProcessed) / float64(processorStats.TotalProcessed) * 100
	}

	response := gin.H{
		"processor": processorStats,
		"queue":     h.processor.GetQueueStats(),
		"store":     h.store.Stats(),
		"stream": gin.H{
			"active_viewers": h.activeViewers.Load(),
			"frames_sent":    h.framesSent.Load(),
		},
		"metrics": metrics,
	}

	if cacheStats, err := h.processor.GetCacheStats(c.Request.Context()); err == nil {
		response["cache"] = cacheStats
	}

	c.JSON(http.StatusOK, response)
}
