package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OutcomeCredited   = "credited"
	OutcomeUnresolved = "unresolved"
	OutcomeExpired    = "expired"
)

// OutcomeMessage is what the bot frontend receives for each reconciliation
// outcome. Unresolved messages carry no user ref; the frontend routes them to
// the operator channel instead of a user chat.
type OutcomeMessage struct {
	UserRef  string `json:"user_ref,omitempty"`
	Outcome  string `json:"outcome"`
	IntentID string `json:"intent_id,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
	Credits  int64  `json:"credits"`
	Balance  int64  `json:"balance"`
}

type Job struct {
	Message OutcomeMessage
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("notifier worker processing job", "worker_id", w.ID, "user_ref", job.Message.UserRef)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("notifier worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Client delivers outcome messages to the bot frontend through a worker pool.
// Delivery is fire-and-forget: a failed or dropped message never affects the
// credit that triggered it.
type Client struct {
	callbackURL    string
	apiKey         string
	requestTimeout time.Duration
	logger         *slog.Logger

	httpClient *http.Client
	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type Config struct {
	CallbackURL    string
	APIKey         string
	RequestTimeout time.Duration
	MaxWorkers     int
	JobQueueSize   int
	WorkerPoolSize int
}

func NewClient(config Config, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 5
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	workerPoolSize := config.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = maxWorkers
	}

	requestTimeout := config.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	client := &Client{
		callbackURL:    config.CallbackURL,
		apiKey:         config.APIKey,
		requestTimeout: requestTimeout,
		logger:         logger,

		httpClient: &http.Client{Timeout: requestTimeout},
		maxWorkers: maxWorkers,
		jobQueue:   make(chan Job, jobQueueSize),
		workerPool: make(chan chan Job, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	client.startWorkerPool()

	return client
}

func (c *Client) startWorkerPool() {
	c.once.Do(func() {
		for i := 0; i < c.maxWorkers; i++ {
			worker := NewWorker(i, c.workerPool, c.logger)
			worker.Start(c.ctx, &c.wg, c.deliver)
		}

		go c.dispatch()

		c.logger.Info("notifier worker pool started",
			"max_workers", c.maxWorkers,
			"queue_size", cap(c.jobQueue))
	})
}

func (c *Client) dispatch() {
	c.wg.Add(1)
	defer c.wg.Done()

	for {
		select {
		case job := <-c.jobQueue:
			select {
			case jobChannel := <-c.workerPool:
				select {
				case jobChannel <- job:
				case <-c.ctx.Done():
					c.logger.Info("notifier dispatcher shutting down")
					return
				}
			case <-c.ctx.Done():
				c.logger.Info("notifier dispatcher shutting down")
				return
			}
		case <-c.ctx.Done():
			c.logger.Info("notifier dispatcher shutting down")
			return
		}
	}
}

func (c *Client) Shutdown() {
	c.logger.Info("shutting down notifier client")
	c.cancel()
	c.wg.Wait()
	c.logger.Info("notifier client shutdown complete")
}

// Notify queues an outcome message. A full queue drops the message with a
// warning rather than blocking the reconciliation path.
func (c *Client) Notify(message OutcomeMessage) {
	select {
	case c.jobQueue <- Job{Message: message}:
		c.logger.Debug("outcome message queued",
			"user_ref", message.UserRef,
			"outcome", message.Outcome,
			"queue_length", len(c.jobQueue))
	default:
		c.logger.Warn("notifier queue full, dropping outcome message",
			"user_ref", message.UserRef,
			"outcome", message.Outcome,
			"queue_capacity", cap(c.jobQueue))
	}
}

func (c *Client) deliver(job Job) {
	body, err := json.Marshal(job.Message)
	if err != nil {
		c.logger.Error("failed to marshal outcome message", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.callbackURL, bytes.NewBuffer(body))
	if err != nil {
		c.logger.Error("failed to build callback request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("outcome delivery failed",
			"error", err,
			"user_ref", job.Message.UserRef,
			"outcome", job.Message.Outcome)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("bot callback rejected outcome message",
			"status", resp.StatusCode,
			"user_ref", job.Message.UserRef,
			"outcome", job.Message.Outcome)
		return
	}

	c.logger.Info("outcome delivered",
		"user_ref", job.Message.UserRef,
		"outcome", job.Message.Outcome,
		"status", resp.StatusCode)
}

// FormatAmount renders minor units for the frontend, e.g. 500 -> "5.00".
func FormatAmount(amountCents int64) string {
	return decimal.NewFromInt(amountCents).Shift(-2).StringFixed(2)
}
