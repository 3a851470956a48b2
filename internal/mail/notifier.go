package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/pep-dortmund/member-database/internal/platform/metrics"
)

const (
	defaultQueueSize    = 256
	defaultMaxAttempts  = 8
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 5 * time.Minute
)

// Notifier decouples participant-facing latency from the mail transport. The
// request path calls Enqueue, which never blocks; a worker goroutine delivers
// each message, retrying with exponential backoff up to a bounded attempt
// count. A message that exhausts its attempts is logged and dropped.
type Notifier struct {
	sender       Sender
	queue        chan Message
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures the Notifier.
type Option func(*Notifier)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithMetrics attaches delivery metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// WithQueueSize overrides the queue capacity when greater than zero.
func WithQueueSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.queue = make(chan Message, size)
		}
	}
}

// WithMaxAttempts bounds the delivery attempts per message.
func WithMaxAttempts(attempts int) Option {
	return func(n *Notifier) {
		if attempts > 0 {
			n.maxAttempts = attempts
		}
	}
}

// WithBackoff overrides the initial and maximum retry delay.
func WithBackoff(initial, max time.Duration) Option {
	return func(n *Notifier) {
		if initial > 0 {
			n.initialDelay = initial
		}
		if max > 0 {
			n.maxDelay = max
		}
	}
}

// NewNotifier constructs a Notifier delivering through sender.
func NewNotifier(sender Sender, opts ...Option) *Notifier {
	n := &Notifier{
		sender:       sender,
		queue:        make(chan Message, defaultQueueSize),
		maxAttempts:  defaultMaxAttempts,
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enqueue hands a message to the delivery worker. It never blocks: when the
// queue is full the message is dropped and counted, because registration
// state has already been committed and must not be gated on the transport.
func (n *Notifier) Enqueue(msg Message) {
	select {
	case n.queue <- msg:
		if n.metrics != nil {
			n.metrics.IncrementMailEnqueued()
		}
	default:
		n.logger.Error("mail queue full, dropping message", "subject", msg.Subject)
		if n.metrics != nil {
			n.metrics.IncrementMailDropped()
		}
	}
}

// Start runs the delivery loop until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) error {
	for {
		select {
		case msg := <-n.queue:
			n.deliver(ctx, msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, msg Message) {
	delay := n.initialDelay
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if n.metrics != nil {
			n.metrics.IncrementMailAttempts()
		}

		err := n.sender.Send(ctx, msg)
		if err == nil {
			n.logger.Info("mail sent",
				"subject", msg.Subject,
				"recipients", msg.Recipients,
				"attempt", attempt,
			)
			return
		}

		n.logger.Error("mail delivery failed",
			"subject", msg.Subject,
			"attempt", attempt,
			"max_attempts", n.maxAttempts,
			"wait", delay,
			"error", err,
		)

		if attempt == n.maxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay *= 2
		if delay > n.maxDelay {
			delay = n.maxDelay
		}
	}

	n.logger.Error("mail dropped after exhausting retries",
		"subject", msg.Subject,
		"recipients", msg.Recipients,
	)
	if n.metrics != nil {
		n.metrics.IncrementMailFailures()
	}
}
