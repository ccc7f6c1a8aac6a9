package logging

// ProgressSampler suppresses repetitive progress logs. It emits when a counter
// advances into a new bucket, or every time the counter moves when no total is
// known.
type ProgressSampler struct {
	bucketSize float64
	lastCount  int
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the completion
// percentage crosses bucket boundaries (default 10%).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastCount: -1, lastBucket: -1}
}

// ShouldLog reports whether a progress observation of count out of total
// should be logged. A total <= 0 means the total is unknown.
func (s *ProgressSampler) ShouldLog(count, total int) bool {
	if s == nil {
		return true
	}
	if count <= s.lastCount {
		return false
	}
	s.lastCount = count
	if total <= 0 {
		return true
	}
	percent := float64(count) / float64(total) * 100
	if percent > 100 {
		percent = 100
	}
	bucket := int(percent / s.bucketSize)
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		return true
	}
	return false
}

// Reset clears the sampler state (e.g. when a new job starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastCount = -1
	s.lastBucket = -1
}
