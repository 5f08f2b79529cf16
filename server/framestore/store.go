// Package framestore holds the most recently annotated video frame.
//
// The store is a single slot: every Publish replaces the previous frame and
// nothing is queued. Frames are copied on the way in and on the way out, so
// callers may keep drawing on or encoding their own copy without holding the
// lock.
package framestore

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

type Store struct {
	mu        sync.Mutex
	cond      *sync.Cond
	frame     *image.NRGBA
	seq       uint64
	updatedAt time.Time
}

type Stats struct {
	Publishes   uint64    `json:"publishes"`
	HasFrame    bool      `json:"has_frame"`
	LastPublish time.Time `json:"last_publish,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
}

func New() *Store {
	s := &Store{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish replaces the stored frame with a copy of img and returns the new
// sequence number.
func (s *Store) Publish(img image.Image) uint64 {
	// copy outside the critical section
	frame := imaging.Clone(img)

	s.mu.Lock()
	s.frame = frame
	s.seq++
	s.updatedAt = time.Now()
	seq := s.seq
	s.mu.Unlock()

	s.cond.Broadcast()
	return seq
}

// Consume returns a copy of the current frame and its sequence number. ok
// is false when nothing has been published yet.
func (s *Store) Consume() (frame *image.NRGBA, seq uint64, ok bool) {
	s.mu.Lock()
	current, seq := s.frame, s.seq
	s.mu.Unlock()

	if current == nil {
		return nil, 0, false
	}
	// published frames are never mutated in place, so the copy can be taken
	// after releasing the lock
	return imaging.Clone(current), seq, true
}

// Wait blocks until a frame newer than after has been published or ctx is
// done, then returns a copy of the current frame.
func (s *Store) Wait(ctx context.Context, after uint64) (*image.NRGBA, uint64, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cond.Broadcast()
	})
	defer stop()

	s.mu.Lock()
	for s.seq <= after && ctx.Err() == nil {
		s.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return nil, after, err
	}
	current, seq := s.frame, s.seq
	s.mu.Unlock()

	return imaging.Clone(current), seq, nil
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Publishes:   s.seq,
		HasFrame:    s.frame != nil,
		LastPublish: s.updatedAt,
	}
	if s.frame != nil {
		stats.Width = s.frame.Bounds().Dx()
		stats.Height = s.frame.Bounds().Dy()
	}
	return stats
}
