package engine

import (
	"sort"
	"time"

	"github.com/vesaa/clawwatch/internal/models"
)

// sampleSeries is a bounded per-device metric series kept in ascending
// timestamp order. Delayed reports insert at their own position, so the
// series stays a faithful timeline even under out-of-order arrival.
// Once the retention cap is exceeded the oldest samples are dropped.
type sampleSeries struct {
	cap     int
	samples []models.MetricSample
}

func newSampleSeries(cap int) *sampleSeries {
	if cap <= 0 {
		cap = 1
	}
	return &sampleSeries{cap: cap}
}

// insert adds one sample, keeping ascending order and the cap.
func (s *sampleSeries) insert(sample models.MetricSample) {
	i := sort.Search(len(s.samples), func(i int) bool {
		return s.samples[i].Timestamp.After(sample.Timestamp)
	})
	s.samples = append(s.samples, models.MetricSample{})
	copy(s.samples[i+1:], s.samples[i:])
	s.samples[i] = sample

	if excess := len(s.samples) - s.cap; excess > 0 {
		s.samples = append(s.samples[:0], s.samples[excess:]...)
	}
}

// rangeBetween returns a copy of the samples with timestamps in
// [from, to], ascending. Evicted samples are silently absent.
func (s *sampleSeries) rangeBetween(from, to time.Time) []models.MetricSample {
	lo := sort.Search(len(s.samples), func(i int) bool {
		return !s.samples[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(s.samples), func(i int) bool {
		return s.samples[i].Timestamp.After(to)
	})
	if lo >= hi {
		return nil
	}
	out := make([]models.MetricSample, hi-lo)
	copy(out, s.samples[lo:hi])
	return out
}

// latest returns the most recent sample, if any.
func (s *sampleSeries) latest() (models.MetricSample, bool) {
	if len(s.samples) == 0 {
		return models.MetricSample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

func (s *sampleSeries) len() int { return len(s.samples) }
