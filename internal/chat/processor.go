package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chatsense/chatsense/internal/analyzer"
	"github.com/chatsense/chatsense/internal/domain"
	"github.com/chatsense/chatsense/internal/metrics"
	"github.com/chatsense/chatsense/internal/store"
)

// roomQueueBuffer bounds each room's pending submissions. Submit blocks
// once a room backs up this far, applying per-room backpressure without
// stalling other rooms.
const roomQueueBuffer = 64

// RefreshFunc is the fire-and-forget analytics refresh hook invoked after
// each broadcast message. Failures are the hook's own concern.
type RefreshFunc func(room string, a domain.Analysis)

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	MaxMessageLength int
	AnalyzerTimeout  time.Duration
	StoreTimeout     time.Duration
	Refresh          RefreshFunc
}

// Processor orchestrates validation, rate limiting, analysis,
// persistence, and broadcast for inbound messages. Each room has its own
// single-writer queue, so room members observe messages in submission
// order while unrelated rooms process fully in parallel.
type Processor struct {
	registry *Registry
	repo     store.Repository
	analyzer analyzer.Analyzer
	limiter  *Limiter
	opts     ProcessorOptions

	// mu also orders enqueues against Close: submitters hold the read
	// lock across the channel send, so queues are never closed with a
	// send in flight.
	mu     sync.RWMutex
	queues map[string]chan job
	closed bool
	wg     sync.WaitGroup
}

type job struct {
	sess     *Session
	username string
	room     string
	text     string
}

// NewProcessor creates a message processor.
func NewProcessor(registry *Registry, repo store.Repository, an analyzer.Analyzer, limiter *Limiter, opts ProcessorOptions) *Processor {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 500
	}
	if opts.AnalyzerTimeout <= 0 {
		opts.AnalyzerTimeout = 5 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}

	return &Processor{
		registry: registry,
		repo:     repo,
		analyzer: an,
		limiter:  limiter,
		opts:     opts,
		queues:   make(map[string]chan job),
	}
}

// Submit validates a message and enqueues it on the room's serial queue.
// Validation failures are returned to the caller and have no side
// effects; everything past validation runs on the room worker and reports
// failures to the sending session only.
func (p *Processor) Submit(sess *Session, username, room, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.MessagesRejected.WithLabelValues("empty").Inc()
		return ErrEmptyMessage
	}
	// The limit is in characters, not bytes.
	if utf8.RuneCountInString(text) > p.opts.MaxMessageLength {
		metrics.MessagesRejected.WithLabelValues("too_long").Inc()
		return &MessageTooLongError{Limit: p.opts.MaxMessageLength}
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrShuttingDown
	}
	queue, ok := p.queues[room]
	if !ok {
		p.mu.RUnlock()
		queue = p.ensureQueue(room)
		if queue == nil {
			return ErrShuttingDown
		}
		p.mu.RLock()
		if p.closed {
			p.mu.RUnlock()
			return ErrShuttingDown
		}
	}
	queue <- job{sess: sess, username: username, room: room, text: text}
	p.mu.RUnlock()
	return nil
}

func (p *Processor) ensureQueue(room string) chan job {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	queue, ok := p.queues[room]
	if !ok {
		queue = make(chan job, roomQueueBuffer)
		p.queues[room] = queue
		p.wg.Add(1)
		go p.roomWorker(room, queue)
	}
	return queue
}

// roomWorker drains one room's queue in order. Analyzer and store calls
// happen here, outside any lock shared with other rooms, so slow I/O in
// one room never blocks another.
func (p *Processor) roomWorker(room string, queue chan job) {
	defer p.wg.Done()
	for j := range queue {
		p.process(j)
	}
	slog.Debug("Room worker stopped", "room", room)
}

func (p *Processor) process(j job) {
	if !p.limiter.Admit(j.sess.ID) {
		metrics.MessagesRejected.WithLabelValues("rate_limited").Inc()
		j.sess.DeliverEvent(EventError, ErrorPayload{Message: ErrorMessage(ErrRateLimited)})
		return
	}

	analysis := p.analyze(j.text)

	msg := domain.Message{
		Username: j.username,
		Room:     j.room,
		Text:     j.text,
	}
	msg.SetAnalysis(analysis)

	saveCtx, cancel := context.WithTimeout(context.Background(), p.opts.StoreTimeout)
	err := p.repo.SaveMessage(saveCtx, &msg)
	cancel()
	if err != nil {
		slog.Error("Failed to persist message", "room", j.room, "username", j.username, "error", err)
		metrics.MessagesRejected.WithLabelValues("persist").Inc()
		j.sess.DeliverEvent(EventError, ErrorPayload{Message: "Failed to process message"})
		return
	}

	statCtx, cancel := context.WithTimeout(context.Background(), p.opts.StoreTimeout)
	if err := p.repo.IncrementMessageCount(statCtx, j.username); err != nil {
		slog.Warn("Failed to update user stats", "username", j.username, "error", err)
	}
	cancel()

	p.registry.Broadcast(j.room, EventNewMessage, NewMessagePayload{
		ID:        msg.ID,
		Username:  msg.Username,
		Room:      msg.Room,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		Analysis:  analysis,
	})
	metrics.MessagesProcessed.Inc()
	slog.Info("Message processed",
		"room", j.room,
		"username", j.username,
		"emotion", analysis.Emotion,
		"entities", len(analysis.Entities))

	if p.opts.Refresh != nil {
		go p.refresh(j.room, analysis)
	}
}

// analyze runs the analyzer under its deadline, substituting the neutral
// default on any failure. Analyzer failure is never fatal to delivery.
func (p *Processor) analyze(text string) domain.Analysis {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.AnalyzerTimeout)
	defer cancel()

	result, err := p.analyzer.Analyze(ctx, text)
	if err != nil {
		slog.Warn("Analyzer failed, using neutral analysis", "error", err)
		metrics.AnalyzerFailures.Inc()
		return domain.NeutralAnalysis()
	}
	return *result
}

func (p *Processor) refresh(room string, a domain.Analysis) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in analytics refresh", "room", room, "panic", r)
		}
	}()
	p.opts.Refresh(room, a)
}

// Close stops accepting submissions, drains every room queue, and waits
// for the workers to finish in-flight messages.
func (p *Processor) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, queue := range p.queues {
		close(queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
