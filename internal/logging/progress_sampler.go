package logging

// ProgressSampler throttles "distribution progress" lines for one step. It
// emits when processed items cross into a new percentage bucket and always
// on completion.
type ProgressSampler struct {
	bucket   float64
	last     int
	finished bool
}

// NewProgressSampler returns a sampler with buckets of pct percent. Values
// outside (0, 100] fall back to 10.
func NewProgressSampler(pct float64) *ProgressSampler {
	if pct <= 0 || pct > 100 {
		pct = 10
	}
	return &ProgressSampler{bucket: pct, last: -1}
}

// ShouldLog reports whether done of total processed items is worth a line.
// A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(done, total int) bool {
	if s == nil {
		return true
	}
	if total <= 0 || s.finished {
		return false
	}
	if done >= total {
		s.finished = true
		return true
	}
	bucket := int(float64(done) * 100 / float64(total) / s.bucket)
	if bucket <= s.last {
		return false
	}
	s.last = bucket
	return true
}
