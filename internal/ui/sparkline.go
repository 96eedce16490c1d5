package ui

import "strings"

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps the last width samples and draws them as bars scaled to
// the largest retained sample.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline of width samples (60 if not positive).
func NewSparkline(width int) *Sparkline {
	if width <= 0 {
		width = 60
	}
	return &Sparkline{samples: make([]float64, width)}
}

// Add appends a sample, evicting the oldest when full.
func (s *Sparkline) Add(v float64) {
	s.samples[s.head] = v
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Count returns how many samples were added since the last Clear.
func (s *Sparkline) Count() int { return s.count }

// Clear drops all samples.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head, s.count = 0, 0
}

// recent returns the retained samples, oldest first.
func (s *Sparkline) recent() []float64 {
	n := min(s.count, len(s.samples))
	out := make([]float64, 0, n)
	start := (s.head - n + len(s.samples)) % len(s.samples)
	for i := range n {
		out = append(out, s.samples[(start+i)%len(s.samples)])
	}
	return out
}

// Render draws the newest width samples, right-aligned and left-padded
// with spaces. A width of zero or less uses the capacity.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	vals := s.recent()
	if len(vals) > width {
		vals = vals[len(vals)-width:]
	}

	peak := 0.0
	for _, v := range vals {
		peak = max(peak, v)
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", width-len(vals)))
	top := len(SparklineChars) - 1
	for _, v := range vals {
		idx := 0
		if peak > 0 && v > 0 {
			idx = min(max(int(v/peak*float64(top)), 0), top)
		}
		b.WriteRune(SparklineChars[idx])
	}
	return b.String()
}
