package processor

import (
	"context"
	"testing"
	"time"

	"github.com/san-kum/squat-coach-cv/server/models"
)

func newItem() *QueueItem {
	return &QueueItem{
		Ctx:        context.Background(),
		Job:        &models.FrameJob{ID: "job"},
		ResultChan: make(chan *ProcessingResult, 1),
		StartTime:  time.Now(),
	}
}

func TestQueueRunsJobs(t *testing.T) {
	q := NewProcessingQueue(4, 2, func(item *QueueItem) {
		item.ResultChan <- &ProcessingResult{Result: &models.FrameResult{Feedback: item.Job.ID}}
	})
	defer q.Shutdown(time.Second)

	item := newItem()
	if !q.Enqueue(item) {
		t.Fatal("Enqueue() rejected item")
	}

	select {
	case res := <-item.ResultChan:
		if res.Err != nil || res.Result.Feedback != "job" {
			t.Errorf("unexpected result %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewProcessingQueue(1, 1, func(item *QueueItem) {
		started <- struct{}{}
		<-block
		item.ResultChan <- &ProcessingResult{Result: &models.FrameResult{}}
	})
	defer q.Shutdown(time.Second)
	defer close(block)

	if !q.Enqueue(newItem()) {
		t.Fatal("first item should be accepted")
	}
	<-started

	if !q.Enqueue(newItem()) {
		t.Fatal("second item should fill the buffer")
	}
	if q.Enqueue(newItem()) {
		t.Error("third item should be rejected")
	}

	stats := q.GetQueueStats()
	if stats.CurrentSize != 1 || stats.UtilizationPercent != 100 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestQueueRecoversPanics(t *testing.T) {
	q := NewProcessingQueue(1, 1, func(item *QueueItem) {
		panic("boom")
	})
	defer q.Shutdown(time.Second)

	item := newItem()
	q.Enqueue(item)

	select {
	case res := <-item.ResultChan:
		if KindOf(res.Err) != KindDetectionFailure {
			t.Errorf("expected detection failure, got %v", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}
}

func TestQueueShutdownDrains(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewProcessingQueue(2, 1, func(item *QueueItem) {
		started <- struct{}{}
		<-block
		item.ResultChan <- &ProcessingResult{Result: &models.FrameResult{}}
	})

	q.Enqueue(newItem())
	<-started
	pending := newItem()
	q.Enqueue(pending)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()
	if err := q.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	// the worker may pick the pending item up before it sees shutdown, so
	// either outcome is fine as long as the caller is answered
	select {
	case res := <-pending.ResultChan:
		if res.Err != nil && KindOf(res.Err) != KindOverloaded {
			t.Errorf("expected overloaded, got %v", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending item was never answered")
	}

	if q.Enqueue(newItem()) {
		t.Error("queue should reject items after shutdown")
	}
	if q.IsRunning() {
		t.Error("queue still running")
	}
}
