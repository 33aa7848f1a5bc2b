// Package brightdata drives the Bright Data Datasets API: trigger a scrape,
// wait for the snapshot, download it.
package brightdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"review_notification_bot/internal/domain/review"
	"review_notification_bot/internal/infra/retry"
)

const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusReady   = "ready"
	StatusFailed  = "failed"

	maxErrorBody = 512
)

// Options configures a Collector.
type Options struct {
	Endpoint   string // Trigger URL
	BaseURL    string // e.g. https://api.brightdata.com/datasets/v3
	APIKey     string
	TargetURL  string
	SortFilter string
	Pages      int

	MaxRetries               int
	BackoffUnit              time.Duration
	PollInterval             time.Duration
	PollMaxWait              time.Duration
	MaxConsecutivePollErrors int
	RequestTimeout           time.Duration
}

// RetryObserver is told about every retry. Used for metrics.
type RetryObserver interface {
	CollectorRetry(phase string)
}

// Collector runs one trigger → poll → download cycle per Collect call.
type Collector struct {
	opts     Options
	client   *http.Client
	logger   *logrus.Entry
	observer RetryObserver

	now   func() time.Time
	sleep retry.SleepFunc
}

// NewCollector builds a collector. observer may be nil.
func NewCollector(opts Options, logger *logrus.Entry, observer RetryObserver) *Collector {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Collector{
		opts:     opts,
		client:   &http.Client{Timeout: opts.RequestTimeout},
		logger:   logger,
		observer: observer,
		now:      time.Now,
		sleep:    retry.Sleep,
	}
}

type triggerRequest struct {
	URL        string `json:"url"`
	SortFilter string `json:"sort_filter"`
	Pages      int    `json:"pages"`
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

type progressResponse struct {
	Status string `json:"status"`
}

// Collect returns the records of a fresh snapshot. Records that do not decode
// are skipped; the returned error, if any, wraps one of the package sentinels.
func (c *Collector) Collect(ctx context.Context) ([]review.Payload, error) {
	c.logger.WithField("target", c.opts.TargetURL).Info("Triggering collection")
	snapshotID, err := c.trigger(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTriggerFailed, err)
	}

	log := c.logger.WithField("snapshot_id", snapshotID)
	log.Info("Collection triggered, waiting for snapshot")

	if err := c.waitReady(ctx, snapshotID, log); err != nil {
		return nil, err
	}

	log.Info("Snapshot ready, downloading")
	records, err := c.download(ctx, snapshotID, log)
	if err != nil {
		return nil, err
	}

	log.WithField("records", len(records)).Info("Snapshot downloaded")
	return records, nil
}

func (c *Collector) trigger(ctx context.Context) (string, error) {
	body, err := json.Marshal([]triggerRequest{{
		URL:        c.opts.TargetURL,
		SortFilter: c.opts.SortFilter,
		Pages:      c.opts.Pages,
	}})
	if err != nil {
		return "", fmt.Errorf("marshal trigger request: %w", err)
	}

	var snapshotID string
	err = c.policy(PhaseTrigger).Do(ctx, func(attempt int) error {
		respBody, err := c.do(ctx, PhaseTrigger, http.MethodPost, c.opts.Endpoint, body)
		if err != nil {
			return err
		}
		snapshotID, err = parseSnapshotID(respBody)
		if err != nil {
			return &Error{Phase: PhaseTrigger, Err: err}
		}
		return nil
	})
	return snapshotID, err
}

func parseSnapshotID(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	var resp triggerResponse

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []triggerResponse
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("decode trigger response: %w", err)
		}
		if len(list) > 0 {
			resp = list[0]
		}
	} else if err := json.Unmarshal(trimmed, &resp); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}

	if resp.SnapshotID == "" {
		return "", errors.New("no snapshot_id in trigger response")
	}
	return resp.SnapshotID, nil
}

func (c *Collector) waitReady(ctx context.Context, snapshotID string, log *logrus.Entry) error {
	progressURL := c.opts.BaseURL + "/progress/" + url.PathEscape(snapshotID)
	start := c.now()
	consecutiveErrors := 0

	for {
		elapsed := c.now().Sub(start)
		if elapsed >= c.opts.PollMaxWait {
			return &Error{Phase: PhasePoll, Transient: true, Err: fmt.Errorf("%w after %s", ErrPollTimeout, elapsed.Round(time.Second))}
		}

		if err := c.sleep(ctx, c.opts.PollInterval); err != nil {
			return fmt.Errorf("%w: %w", ErrPollFailed, err)
		}

		status, err := c.progress(ctx, progressURL)
		if err != nil {
			if !IsTransient(err) {
				return fmt.Errorf("%w: %w", ErrPollFailed, err)
			}
			consecutiveErrors++
			log.WithError(err).WithField("consecutive_errors", consecutiveErrors).Warn("Progress check failed")
			if consecutiveErrors >= c.opts.MaxConsecutivePollErrors {
				return fmt.Errorf("%w: %d consecutive errors: %w", ErrPollFailed, consecutiveErrors, err)
			}
			c.observeRetry(PhasePoll)
			continue
		}
		consecutiveErrors = 0

		log.WithField("status", status).Debug("Snapshot progress")
		switch status {
		case StatusReady:
			return nil
		case StatusFailed:
			return &Error{Phase: PhasePoll, Err: ErrJobFailed}
		}
	}
}

func (c *Collector) progress(ctx context.Context, progressURL string) (string, error) {
	body, err := c.do(ctx, PhasePoll, http.MethodGet, progressURL, nil)
	if err != nil {
		return "", err
	}
	var resp progressResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Phase: PhasePoll, Transient: true, Err: fmt.Errorf("decode progress: %w", err)}
	}
	return strings.ToLower(strings.TrimSpace(resp.Status)), nil
}

func (c *Collector) download(ctx context.Context, snapshotID string, log *logrus.Entry) ([]review.Payload, error) {
	downloadURL := c.opts.BaseURL + "/snapshot/" + url.PathEscape(snapshotID) + "?format=json"

	var body []byte
	err := c.policy(PhaseDownload).Do(ctx, func(attempt int) error {
		var err error
		body, err = c.do(ctx, PhaseDownload, http.MethodGet, downloadURL, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Phase: PhaseDownload, Err: fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
	}
	if len(raw) == 0 {
		return nil, &Error{Phase: PhaseDownload, Err: ErrEmptyDataset}
	}

	records := make([]review.Payload, 0, len(raw))
	for i, item := range raw {
		var p review.Payload
		if err := json.Unmarshal(item, &p); err != nil {
			log.WithError(err).WithField("index", i).Warn("Skipping undecodable record")
			continue
		}
		records = append(records, p)
	}
	if len(records) == 0 {
		return nil, &Error{Phase: PhaseDownload, Err: fmt.Errorf("%w: no decodable records among %d", ErrMalformedPayload, len(raw))}
	}
	return records, nil
}

// do performs one request and classifies failures.
func (c *Collector) do(ctx context.Context, phase Phase, method, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &Error{Phase: phase, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Cancellation of our own context is not worth retrying.
		return nil, &Error{Phase: phase, Transient: ctx.Err() == nil, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Phase: phase, Status: resp.StatusCode, Transient: true, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusAccepted && phase == PhaseDownload:
		return nil, &Error{Phase: phase, Status: resp.StatusCode, Transient: true, Err: errors.New("snapshot not ready yet")}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &Error{Phase: phase, Status: resp.StatusCode, Transient: true, Err: errors.New(snippet(respBody))}
	default:
		return nil, &Error{Phase: phase, Status: resp.StatusCode, Err: errors.New(snippet(respBody))}
	}
}

func (c *Collector) policy(phase Phase) retry.Policy {
	return retry.Policy{
		Attempts:  c.opts.MaxRetries,
		Unit:      c.opts.BackoffUnit,
		Sleep:     c.sleep,
		Retryable: IsTransient,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"phase":   phase,
				"attempt": attempt,
				"wait":    wait,
			}).Warn("Request failed, retrying")
			c.observeRetry(phase)
		},
	}
}

func (c *Collector) observeRetry(phase Phase) {
	if c.observer != nil {
		c.observer.CollectorRetry(string(phase))
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
