package engine

import (
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// Bot detection thresholds on the composite score:
//
//	< 0.3   → human, normal negotiation
//	0.3-0.7 → suspicious, tighten strategy (high beta)
//	> 0.7   → likely bot, rate-limit / flag
const (
	// defaultMinIntervalSec is the human-plausible time between offers.
	defaultMinIntervalSec = 2.0
	// defaultMaxStddevSec is the interval jitter below which timing looks scripted.
	defaultMaxStddevSec = 0.5

	defaultTimingWeight  = 0.5
	defaultPatternWeight = 0.5
)

// BotDetector scores one session's (timestamp, offer) stream for bot-like
// behaviour: suspiciously fast or metronomic timing, and algorithmically
// regular offer increments.
type BotDetector struct {
	timingWeight   float64
	patternWeight  float64
	minIntervalSec float64
	maxStddevSec   float64

	timestamps []time.Time
	offers     []float64
}

// NewBotDetector builds a detector with default weights and thresholds.
func NewBotDetector() *BotDetector {
	return &BotDetector{
		timingWeight:   defaultTimingWeight,
		patternWeight:  defaultPatternWeight,
		minIntervalSec: defaultMinIntervalSec,
		maxStddevSec:   defaultMaxStddevSec,
	}
}

// Record appends one observation.
func (d *BotDetector) Record(at time.Time, offer float64) {
	d.timestamps = append(d.timestamps, at)
	d.offers = append(d.offers, offer)
}

// ScoreTiming scores 0-1 on how bot-like the inter-offer timing is.
// Fewer than 3 samples score 0.
func (d *BotDetector) ScoreTiming() float64 {
	if len(d.timestamps) < 3 {
		return 0
	}

	intervals := make([]float64, 0, len(d.timestamps)-1)
	for i := 1; i < len(d.timestamps); i++ {
		intervals = append(intervals, d.timestamps[i].Sub(d.timestamps[i-1]).Seconds())
	}

	avg, _ := stats.Mean(intervals)
	speedScore := math.Max(0, 1.0-avg/(d.minIntervalSec*3))

	// Very consistent intervals are a second tell.
	consistencyScore := 0.0
	if len(intervals) >= 3 {
		sd, _ := stats.StandardDeviationSample(intervals)
		consistencyScore = math.Max(0, 1.0-sd/d.maxStddevSec)
	}

	return math.Min(1, (speedScore+consistencyScore)/2)
}

// ScorePattern scores 0-1 on how algorithmic the offer sequence is.
// Fewer than 4 offers score 0.
func (d *BotDetector) ScorePattern() float64 {
	if len(d.offers) < 4 {
		return 0
	}

	deltas := make([]float64, 0, len(d.offers)-1)
	for i := 1; i < len(d.offers); i++ {
		deltas = append(deltas, d.offers[i]-d.offers[i-1])
	}

	// Fixed-increment pattern: all deltas identical after rounding.
	identical := true
	first := Round2(deltas[0])
	for _, dl := range deltas[1:] {
		if Round2(dl) != first {
			identical = false
			break
		}
	}
	if identical {
		return 1.0
	}

	// Near-fixed increments: very low coefficient of variation.
	if len(deltas) >= 3 {
		sd, _ := stats.StandardDeviationSample(deltas)
		avg, _ := stats.Mean(deltas)
		meanDelta := math.Abs(avg)
		if meanDelta == 0 {
			meanDelta = 1.0
		}
		cv := sd / meanDelta
		if cv < 0.05 {
			return 0.9
		}
		if cv < 0.15 {
			return 0.5
		}
	}

	return 0
}

// Score returns the weighted composite bot score, rounded to 3 decimals.
func (d *BotDetector) Score() float64 {
	composite := d.timingWeight*d.ScoreTiming() + d.patternWeight*d.ScorePattern()
	return math.Round(composite*1000) / 1000
}

// RecommendedBeta hardens the concession exponent against suspected bots:
// a bot negotiating against a Boulware curve gains nothing by hammering.
func RecommendedBeta(botScore, baseBeta float64) float64 {
	switch {
	case botScore > 0.7:
		return math.Max(baseBeta, 20.0)
	case botScore > 0.3:
		return math.Max(baseBeta, 10.0)
	default:
		return baseBeta
	}
}

const (
	// detectorPoolMax bounds the per-process detector map.
	detectorPoolMax = 1000
	// detectorPoolEvict is how many of the oldest entries are dropped when
	// the bound is exceeded.
	detectorPoolEvict = 500
)

// DetectorPool holds per-session detectors, bounded so abandoned sessions
// cannot grow the map without limit. Eviction drops the oldest-inserted half;
// terminal sessions are evicted immediately by the orchestrator.
type DetectorPool struct {
	mu        sync.Mutex
	detectors map[string]*BotDetector
	order     []string // insertion order, for oldest-first pruning
}

// NewDetectorPool builds an empty pool.
func NewDetectorPool() *DetectorPool {
	return &DetectorPool{detectors: make(map[string]*BotDetector)}
}

// Get returns the session's detector, creating it if absent.
func (p *DetectorPool) Get(sessionID string) *BotDetector {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d, ok := p.detectors[sessionID]; ok {
		return d
	}
	if len(p.detectors) > detectorPoolMax {
		p.pruneLocked()
	}
	d := NewBotDetector()
	p.detectors[sessionID] = d
	p.order = append(p.order, sessionID)
	return d
}

// Evict removes a session's detector.
func (p *DetectorPool) Evict(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.detectors[sessionID]; !ok {
		return
	}
	delete(p.detectors, sessionID)
	for i, id := range p.order {
		if id == sessionID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of live detectors.
func (p *DetectorPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.detectors)
}

func (p *DetectorPool) pruneLocked() {
	n := detectorPoolEvict
	if n > len(p.order) {
		n = len(p.order)
	}
	for _, id := range p.order[:n] {
		delete(p.detectors, id)
	}
	p.order = append(p.order[:0], p.order[n:]...)
}
