// Package stealth paces agent responses so AI-backed agents read as human:
// per-response delay and typing schedules, progress ticks, and light content
// enrichment. Schedules are cancellable per session.
package stealth

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/config"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/models"
)

const (
	// progressTick is the typing_progress emission interval.
	progressTick = 100 * time.Millisecond

	// jobBuffer bounds the per-session pending response queue.
	jobBuffer = 32
)

// Request is one agent response to pace and deliver.
type Request struct {
	SessionID    string
	AgentID      string
	AgentTier    int
	Content      string
	ResponseType models.ResponseType
}

// Pacer schedules paced response delivery. Each session gets its own worker
// goroutine so events for a session always arrive in order
// typing_start, typing_progress*, typing_end, response_ready; there is no
// ordering across sessions.
type Pacer struct {
	cfg       config.StealthConfig
	publisher *events.Publisher

	mu             sync.Mutex
	rng            *rand.Rand
	workers        map[string]*worker
	responseCounts map[string]int
	stopped        bool

	wg sync.WaitGroup
}

type worker struct {
	ctx    context.Context
	jobs   chan job
	cancel context.CancelFunc
}

type job struct {
	req     Request
	content string
	delay   time.Duration
	typing  time.Duration
}

// NewPacer creates a pacer over the given configuration.
func NewPacer(cfg config.StealthConfig, publisher *events.Publisher) *Pacer {
	return &Pacer{
		cfg:            cfg,
		publisher:      publisher,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		workers:        make(map[string]*worker),
		responseCounts: make(map[string]int),
	}
}

// SetRand swaps the random source. Tests use this for determinism.
func (p *Pacer) SetRand(rng *rand.Rand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rng
}

// Schedule queues the response for paced delivery. With stealth disabled the
// response is delivered immediately, still in per-session order.
func (p *Pacer) Schedule(req Request) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}

	profile := p.cfg.Profile(req.AgentTier)
	count := p.responseCounts[req.SessionID]
	p.responseCounts[req.SessionID]++

	j := job{req: req, content: req.Content}
	if p.cfg.Enabled {
		j.delay = computeDelay(profile, req.ResponseType, count, p.cfg.MaxResponseDelay, p.rng)
		j.typing = computeTyping(profile, req.ResponseType, len(req.Content), p.rng)
		j.content = Enrich(req.Content, profile.Personality, p.rng)
	}

	w := p.workers[req.SessionID]
	if w == nil {
		w = p.startWorker(req.SessionID)
		p.workers[req.SessionID] = w
	}
	p.mu.Unlock()

	select {
	case w.jobs <- j:
	default:
		// Blocking here keeps per-session delivery order intact; emitting
		// from the caller would race the worker's in-flight schedule.
		slog.Warn("Stealth queue full, waiting for drain",
			"session_id", req.SessionID)
		select {
		case w.jobs <- j:
		case <-w.ctx.Done():
		}
	}
}

// Deactivate cancels all pending paced events for the session. No further
// response_ready is emitted for responses already scheduled.
func (p *Pacer) Deactivate(sessionID string) {
	p.mu.Lock()
	w := p.workers[sessionID]
	delete(p.workers, sessionID)
	delete(p.responseCounts, sessionID)
	p.mu.Unlock()

	if w != nil {
		w.cancel()
	}
}

// Stop cancels every session worker and waits for them to exit.
func (p *Pacer) Stop() {
	p.mu.Lock()
	p.stopped = true
	workers := p.workers
	p.workers = make(map[string]*worker)
	p.mu.Unlock()

	for _, w := range workers {
		w.cancel()
	}
	p.wg.Wait()
}

// ActiveSessions returns the number of sessions with a live pacing worker.
func (p *Pacer) ActiveSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// startWorker launches the per-session delivery goroutine. Caller holds the
// lock.
func (p *Pacer) startWorker(sessionID string) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		ctx:    ctx,
		jobs:   make(chan job, jobBuffer),
		cancel: cancel,
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case j := <-w.jobs:
				p.run(ctx, j)
			}
		}
	}()
	return w
}

// run plays out one response schedule. A cancelled context suppresses all
// remaining events for the job.
func (p *Pacer) run(ctx context.Context, j job) {
	p.publisher.TypingStart(events.TypingStartPayload{
		BasePayload:  events.NewBasePayload(events.KindTypingStart, j.req.SessionID),
		AgentID:      j.req.AgentID,
		ResponseType: j.req.ResponseType,
	})

	total := j.delay + j.typing
	if total > 0 {
		start := time.Now()
		done := time.NewTimer(total)
		ticker := time.NewTicker(progressTick)
		defer done.Stop()
		defer ticker.Stop()
	wait:
		for {
			select {
			case <-ctx.Done():
				return
			case <-done.C:
				break wait
			case <-ticker.C:
				p.publisher.TypingProgress(events.TypingProgressPayload{
					BasePayload: events.NewBasePayload(events.KindTypingProgress, j.req.SessionID),
					ElapsedMS:   time.Since(start).Milliseconds(),
					TotalMS:     total.Milliseconds(),
				})
			}
		}
	}

	if ctx.Err() != nil {
		return
	}
	p.publisher.TypingEnd(events.TypingEndPayload{
		BasePayload: events.NewBasePayload(events.KindTypingEnd, j.req.SessionID),
		AgentID:     j.req.AgentID,
	})
	p.publisher.ResponseReady(events.ResponseReadyPayload{
		BasePayload:  events.NewBasePayload(events.KindResponseReady, j.req.SessionID),
		AgentID:      j.req.AgentID,
		ResponseType: j.req.ResponseType,
		Content:      j.content,
		DelayMS:      j.delay.Milliseconds(),
		TypingMS:     j.typing.Milliseconds(),
	})
}

// computeDelay derives the pre-typing think time:
// base delay scaled by a uniform random factor and an experience factor that
// shrinks as the session accumulates responses, clamped to the profile's
// bounds and the global cap.
func computeDelay(profile models.StealthProfile, rt models.ResponseType, responseCount int, globalMax time.Duration, rng *rand.Rand) time.Duration {
	base := float64(profile.Pattern(rt).Delay)

	experience := 1 - 0.05*float64(responseCount)
	if experience < 0.7 {
		experience = 0.7
	}

	v := profile.TypingVariability
	randomFactor := 1 - v/2 + rng.Float64()*v

	delay := time.Duration(base * randomFactor * experience)
	if delay < profile.MinResponseDelay {
		delay = profile.MinResponseDelay
	}
	if profile.MaxResponseDelay > 0 && delay > profile.MaxResponseDelay {
		delay = profile.MaxResponseDelay
	}
	if globalMax > 0 && delay > globalMax {
		delay = globalMax
	}
	return delay
}

// computeTyping derives the visible typing duration from the base typing
// time, the content length relative to a 100-char reference, a small random
// wobble, and the profile's typing speed against the 200 cps reference.
func computeTyping(profile models.StealthProfile, rt models.ResponseType, contentLen int, rng *rand.Rand) time.Duration {
	base := float64(profile.Pattern(rt).TypingDuration)

	lengthFactor := float64(contentLen) / 100
	if lengthFactor < 0.5 {
		lengthFactor = 0.5
	}
	if lengthFactor > 2.0 {
		lengthFactor = 2.0
	}

	wobble := 0.8 + rng.Float64()*0.4

	speed := profile.TypingSpeed
	if speed <= 0 {
		speed = 200
	}

	return time.Duration(base * lengthFactor * wobble * (200 / speed))
}
