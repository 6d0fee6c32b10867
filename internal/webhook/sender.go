// Package webhook pushes job and printer events to configured HTTP
// endpoints. Delivery is asynchronous with retries; a full internal
// queue drops events rather than blocking the print path.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Event string

const (
	EventJobCompleted         Event = "job_completed"
	EventJobFailed            Event = "job_failed"
	EventJobExpired           Event = "job_expired"
	EventJobCancelled         Event = "job_cancelled"
	EventPrinterStatusChanged Event = "printer_status_changed"
)

type Payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Signature string    `json:"signature,omitempty"`
}

type JobEventData struct {
	JobID     string `json:"job_id"`
	PrinterID string `json:"printer_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type PrinterStatusData struct {
	PrinterID      string    `json:"printer_id"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	Timestamp      time.Time `json:"timestamp"`
}

// Endpoint is one webhook subscriber from the config file. An empty
// Events list subscribes to everything.
type Endpoint struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

func (e Endpoint) wants(event Event) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, name := range e.Events {
		if name == string(event) {
			return true
		}
	}
	return false
}

type Config struct {
	Endpoints   []Endpoint    `yaml:"endpoints"`
	RetryCount  int           `yaml:"retry_count"`
	RetryDelay  time.Duration `yaml:"-"`
	Timeout     time.Duration `yaml:"-"`
	WorkerCount int           `yaml:"worker_count"`
	QueueSize   int           `yaml:"queue_size"`
}

// UnmarshalYAML parses retry_delay and timeout in time.ParseDuration
// form. Unset durations stay zero and pick up NewSender defaults.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Endpoints   []Endpoint `yaml:"endpoints"`
		RetryCount  int        `yaml:"retry_count"`
		RetryDelay  string     `yaml:"retry_delay"`
		Timeout     string     `yaml:"timeout"`
		WorkerCount int        `yaml:"worker_count"`
		QueueSize   int        `yaml:"queue_size"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Endpoints = raw.Endpoints
	c.RetryCount = raw.RetryCount
	c.WorkerCount = raw.WorkerCount
	c.QueueSize = raw.QueueSize
	for _, f := range []struct {
		name string
		text string
		dst  *time.Duration
	}{
		{"retry_delay", raw.RetryDelay, &c.RetryDelay},
		{"timeout", raw.Timeout, &c.Timeout},
	} {
		if f.text == "" {
			continue
		}
		d, err := time.ParseDuration(f.text)
		if err != nil {
			return fmt.Errorf("invalid webhook %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

type task struct {
	endpoint Endpoint
	payload  *Payload
	attempt  int
}

type Sender struct {
	endpoints  []Endpoint
	httpClient *http.Client
	retryCount int
	retryDelay time.Duration
	workers    int
	queue      chan *task
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

func NewSender(cfg Config) *Sender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Sender{
		endpoints:  cfg.Endpoints,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		workers:    cfg.WorkerCount,
		queue:      make(chan *task, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sender) SendJobEvent(event Event, data JobEventData) {
	s.enqueue(event, data)
}

func (s *Sender) SendPrinterStatusChange(printerID, prevStatus, newStatus string) {
	s.enqueue(EventPrinterStatusChanged, PrinterStatusData{
		PrinterID:      printerID,
		PreviousStatus: prevStatus,
		NewStatus:      newStatus,
		Timestamp:      time.Now(),
	})
}

func (s *Sender) enqueue(event Event, data any) {
	for _, ep := range s.endpoints {
		if !ep.wants(event) {
			continue
		}

		t := &task{
			endpoint: ep,
			payload: &Payload{
				Event:     string(event),
				Timestamp: time.Now(),
				Data:      data,
			},
		}

		select {
		case s.queue <- t:
		default:
			log.Printf("[webhook] queue full, dropping %s for %s", event, ep.Name)
		}
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				log.Printf("[webhook worker %d] giving up on %s for %s after %d attempts: %v",
					id, t.payload.Event, t.endpoint.Name, t.attempt, err)
			}
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	var lastErr error
	for t.attempt < s.retryCount {
		t.attempt++

		err := s.sendRequest(t.endpoint, t.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if isClientError(err) {
			return err
		}

		if t.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(ep Endpoint, payload *Payload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if ep.Secret != "" {
		payload.Signature = signPayload(dataBytes, ep.Secret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: %d", resp.StatusCode)
	}

	return nil
}

func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "http error: 4")
}
