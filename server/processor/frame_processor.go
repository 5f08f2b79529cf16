package processor

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/san-kum/squat-coach-cv/server/analysis"
	"github.com/san-kum/squat-coach-cv/server/cache"
	"github.com/san-kum/squat-coach-cv/server/codec"
	"github.com/san-kum/squat-coach-cv/server/framestore"
	"github.com/san-kum/squat-coach-cv/server/ml"
	"github.com/san-kum/squat-coach-cv/server/models"
	"github.com/san-kum/squat-coach-cv/server/render"
	"go.uber.org/zap"
)

const HandDetectedText = "Hand Detected!"

// FrameProcessor decodes uploaded frames, runs the landmark detectors,
// burns overlays and feedback into the frame and publishes the result to
// the frame store.
type FrameProcessor struct {
	poseDetector ml.PoseDetector
	handDetector ml.HandDetector
	store        *framestore.Store
	text         *render.TextRenderer
	cache        cache.Cache[models.Detections]
	logger       *zap.Logger
	queue        *ProcessingQueue
	config       *ProcessorConfig

	mutex sync.RWMutex
	stats *ProcessorStats
}

type ProcessorStats struct {
	StartTime             time.Time `json:"start_time"`
	TotalProcessed        int64     `json:"total_processed"`
	SuccessfullyProcessed int64     `json:"successfully_processed"`
	FailedProcessed       int64     `json:"failed_processed"`
	PosesDetected         int64     `json:"poses_detected"`
	HandsDetected         int64     `json:"hands_detected"`
	CacheHits             int64     `json:"cache_hits"`
	AverageLatency        float64   `json:"average_latency_ms"`
	QueueSize             int       `json:"queue_size"`
	ActiveWorkers         int       `json:"active_workers"`
}

type ProcessorConfig struct {
	MaxQueueSize      int           `json:"max_queue_size"`
	MaxWorkers        int           `json:"max_workers"`
	ProcessingTimeout time.Duration `json:"processing_timeout"`
	FlipHorizontal    bool          `json:"flip_horizontal"`
	CacheTTL          time.Duration `json:"cache_ttl"`
	FontSize          float64       `json:"font_size"`
}

func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		MaxQueueSize:      32,
		MaxWorkers:        4,
		ProcessingTimeout: 30 * time.Second,
		FlipHorizontal:    false,
		CacheTTL:          5 * time.Second,
		FontSize:          render.DefaultFontSize,
	}
}

func NewFrameProcessor(
	poseDetector ml.PoseDetector,
	handDetector ml.HandDetector,
	store *framestore.Store,
	detectionCache cache.Cache[models.Detections],
	config *ProcessorConfig,
	logger *zap.Logger,
) (*FrameProcessor, error) {
	if poseDetector == nil || handDetector == nil {
		return nil, fmt.Errorf("pose and hand detectors are required")
	}
	if store == nil {
		return nil, fmt.Errorf("frame store is required")
	}
	if config == nil {
		config = DefaultProcessorConfig()
	}

	text, err := render.NewTextRenderer(config.FontSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create text renderer: %w", err)
	}

	processor := &FrameProcessor{
		poseDetector: poseDetector,
		handDetector: handDetector,
		store:        store,
		text:         text,
		cache:        detectionCache,
		logger:       logger,
		config:       config,
		stats: &ProcessorStats{
			StartTime:     time.Now(),
			ActiveWorkers: config.MaxWorkers,
		},
	}

	processor.queue = NewProcessingQueue(config.MaxQueueSize, config.MaxWorkers, processor.processFrame)

	return processor, nil
}

// ProcessDataURL ingests one uploaded "<prefix>,<base64>" frame and waits
// for its annotation. Failures are returned as *IngestError and leave the
// frame store untouched.
func (fp *FrameProcessor) ProcessDataURL(ctx context.Context, dataURL, clientID string) (*models.FrameResult, error) {
	if strings.TrimSpace(dataURL) == "" {
		return nil, newIngestError(KindMissingInput, errors.New("no image received"))
	}

	imageData, err := codec.DecodeDataURL(dataURL)
	if err != nil {
		fp.recordFailure()
		return nil, newIngestError(KindDecodeFailure, err)
	}

	return fp.ProcessFrame(ctx, &models.FrameJob{
		ID:         uuid.NewString(),
		ImageData:  imageData,
		ClientID:   clientID,
		ReceivedAt: time.Now(),
	})
}

// ProcessFrame queues an already base64-decoded frame and waits for it.
func (fp *FrameProcessor) ProcessFrame(ctx context.Context, job *models.FrameJob) (*models.FrameResult, error) {
	startTime := time.Now()

	fp.mutex.Lock()
	fp.stats.TotalProcessed++
	fp.mutex.Unlock()

	if fp.config.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fp.config.ProcessingTimeout)
		defer cancel()
	}

	resultChan := make(chan *ProcessingResult, 1)
	item := &QueueItem{
		Ctx:        ctx,
		Job:        job,
		ResultChan: resultChan,
		StartTime:  startTime,
	}

	if !fp.queue.Enqueue(item) {
		fp.recordFailure()
		return nil, newIngestError(KindOverloaded, errors.New("processing queue full, try again later"))
	}

	select {
	case result := <-resultChan:
		if result.Err != nil {
			fp.recordFailure()
			return nil, result.Err
		}

		fp.recordSuccess(time.Since(startTime), result.Result)
		return result.Result, nil

	case <-ctx.Done():
		fp.recordFailure()
		return nil, newIngestError(KindDetectionFailure, fmt.Errorf("processing timeout: %w", ctx.Err()))
	}
}

func (fp *FrameProcessor) processFrame(item *QueueItem) {
	if err := item.Ctx.Err(); err != nil {
		item.ResultChan <- &ProcessingResult{Err: newIngestError(KindDetectionFailure, err)}
		return
	}

	result, err := fp.annotate(item.Ctx, item.Job)
	if err != nil {
		fp.logger.Error("Frame processing failed",
			zap.String("frame_id", item.Job.ID),
			zap.String("client_id", item.Job.ClientID),
			zap.Error(err))
		item.ResultChan <- &ProcessingResult{Err: err}
		return
	}

	item.ResultChan <- &ProcessingResult{Result: result}
}

// annotate runs the per-frame pipeline: decode, optional mirror flip, pose
// and hand detection, overlay drawing, squat feedback and publish.
func (fp *FrameProcessor) annotate(ctx context.Context, job *models.FrameJob) (*models.FrameResult, error) {
	frame, err := codec.DecodeImage(job.ImageData)
	if err != nil {
		return nil, newIngestError(KindDecodeFailure, err)
	}

	if fp.config.FlipHorizontal {
		frame = imaging.FlipH(frame)
	}

	detections, err := fp.detect(ctx, job, frame)
	if err != nil {
		return nil, newIngestError(KindDetectionFailure, err)
	}

	// detectors saw the clean frame; overlays go on a separate canvas
	canvas := imaging.Clone(frame)
	width, height := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	result := &models.FrameResult{}
	textY := 10

	if !detections.Pose.Empty() {
		result.PoseDetected = true
		render.DrawLandmarks(canvas, detections.Pose.Landmarks, models.PoseConnections, render.PoseStyle)

		result.Feedback = analysis.ClassifySquat(detections.Pose, width, height)
		if result.Feedback != "" {
			box := fp.text.DrawText(canvas, result.Feedback, 10, textY, render.Green)
			textY = box.Max.Y + 6
		}
	}

	for _, hand := range detections.Hands {
		render.DrawLandmarks(canvas, hand.Landmarks, models.HandConnections, render.HandStyle)
	}
	if len(detections.Hands) > 0 {
		result.HandDetected = true
		fp.text.DrawText(canvas, HandDetectedText, 10, textY, render.Blue)
	}

	// a caller that already gave up must not see its frame on the stream
	if err := ctx.Err(); err != nil {
		return nil, newIngestError(KindDetectionFailure, err)
	}
	seq := fp.store.Publish(canvas)

	fp.logger.Debug("Frame annotated",
		zap.String("frame_id", job.ID),
		zap.Uint64("seq", seq),
		zap.Bool("pose", result.PoseDetected),
		zap.Bool("hand_detected", result.HandDetected),
		zap.String("feedback", result.Feedback))

	return result, nil
}

func (fp *FrameProcessor) detect(ctx context.Context, job *models.FrameJob, frame image.Image) (models.Detections, error) {
	cacheKey := ""
	if fp.cache != nil {
		cacheKey = cache.GenerateCacheKey("detections", fp.generateFrameHash(job.ImageData), fmt.Sprint(fp.config.FlipHorizontal))
		if cached, err := fp.cache.Get(ctx, cacheKey); err == nil {
			fp.logger.Debug("Cache hit for frame", zap.String("frame_id", job.ID))
			fp.mutex.Lock()
			fp.stats.CacheHits++
			fp.mutex.Unlock()
			return cached, nil
		}
	}

	pose, err := fp.poseDetector.DetectPose(ctx, frame)
	if err != nil {
		return models.Detections{}, err
	}

	hands, err := fp.handDetector.DetectHands(ctx, frame)
	if err != nil {
		return models.Detections{}, err
	}

	detections := models.Detections{Pose: pose, Hands: hands}

	if fp.cache != nil && fp.config.CacheTTL > 0 {
		if err := fp.cache.SetWithTTL(ctx, cacheKey, detections, fp.config.CacheTTL); err != nil {
			fp.logger.Warn("Failed to cache detections", zap.Error(err))
		}
	}

	return detections, nil
}

func (fp *FrameProcessor) generateFrameHash(imageData []byte) string {
	return fmt.Sprintf("%x", md5.Sum(imageData))
}

func (fp *FrameProcessor) recordFailure() {
	fp.mutex.Lock()
	defer fp.mutex.Unlock()
	fp.stats.FailedProcessed++
}

func (fp *FrameProcessor) recordSuccess(latency time.Duration, result *models.FrameResult) {
	fp.mutex.Lock()
	defer fp.mutex.Unlock()

	fp.stats.SuccessfullyProcessed++
	if result.PoseDetected {
		fp.stats.PosesDetected++
	}
	if result.HandDetected {
		fp.stats.HandsDetected++
	}

	currentLatency := float64(latency.Milliseconds())
	if fp.stats.AverageLatency == 0 {
		fp.stats.AverageLatency = currentLatency
	} else {
		alpha := 0.1
		fp.stats.AverageLatency = alpha*currentLatency + (1-alpha)*fp.stats.AverageLatency
	}
}

func (fp *FrameProcessor) GetStats() *ProcessorStats {
	fp.mutex.RLock()
	defer fp.mutex.RUnlock()

	stats := *fp.stats
	stats.QueueSize = fp.queue.Size()
	return &stats
}

func (fp *FrameProcessor) GetQueueStats() QueueStats {
	return fp.queue.GetQueueStats()
}

// GetCacheStats returns detection cache statistics
func (fp *FrameProcessor) GetCacheStats(ctx context.Context) (*cache.CacheStats, error) {
	if fp.cache == nil {
		return nil, fmt.Errorf("cache not initialized")
	}

	return fp.cache.GetStats(ctx)
}

// Shutdown gracefully shuts down the frame processor
func (fp *FrameProcessor) Shutdown(timeout time.Duration) error {
	fp.logger.Info("Shutting down frame processor...")

	if err := fp.queue.Shutdown(timeout); err != nil {
		fp.logger.Error("Failed to shutdown queue", zap.Error(err))
		return err
	}

	if fp.cache != nil {
		if err := fp.cache.Close(); err != nil {
			fp.logger.Error("Failed to close cache", zap.Error(err))
			return err
		}
	}

	if err := fp.text.Close(); err != nil {
		fp.logger.Warn("Failed to close font face", zap.Error(err))
	}

	fp.logger.Info("Frame processor shutdown complete")
	return nil
}
