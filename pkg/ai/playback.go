package ai

// PlaybackScheduler keeps the running "next start time" cursor that lets
// back-to-back response chunks play gaplessly: each chunk is scheduled at
// max(now, cursor) and the cursor advances by the chunk's duration, so
// consecutive chunks neither overlap nor leave silence between them.
type PlaybackScheduler struct {
	sampleRate int
	next       float64
}

// NewPlaybackScheduler builds a scheduler for 16-bit mono PCM at the given
// sample rate.
func NewPlaybackScheduler(sampleRate int) *PlaybackScheduler {
	if sampleRate <= 0 {
		sampleRate = SpeechSampleRate
	}
	return &PlaybackScheduler{sampleRate: sampleRate}
}

// Schedule returns the playback start time (in seconds) for a PCM chunk of
// pcmBytes length arriving at time now, and advances the cursor past it.
func (s *PlaybackScheduler) Schedule(now float64, pcmBytes int) float64 {
	if s.next < now {
		s.next = now
	}
	start := s.next
	samples := pcmBytes / 2 // 16-bit samples
	s.next += float64(samples) / float64(s.sampleRate)
	return start
}

// Reset drops the cursor, e.g. after the model turn was interrupted and
// pending playback discarded.
func (s *PlaybackScheduler) Reset() {
	s.next = 0
}
