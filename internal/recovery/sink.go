package recovery

import (
	"alcyxob/session-tracker/internal/domain"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// Sink receives incident records. No response is expected; a failing sink
// must not affect the surface that reported.
type Sink interface {
	Report(ctx context.Context, incident domain.Incident) error
}

// reportIncident hands the incident to sink and only logs sink failures.
func reportIncident(ctx context.Context, sink Sink, incident domain.Incident) {
	if err := sink.Report(context.WithoutCancel(ctx), incident); err != nil {
		log.Printf("WARN: Incident %s could not be reported: %v", incident.ID, err)
	}
}

// LogSink writes incidents to the standard logger.
type LogSink struct{}

func (LogSink) Report(_ context.Context, inc domain.Incident) error {
	log.Printf("ERROR: Surface %s failed (%s) incident=%s: %s", inc.Surface, inc.Class, inc.ID, inc.Message)
	if inc.Stack != "" {
		log.Printf("ERROR: incident=%s stack:\n%s", inc.ID, strings.TrimSpace(inc.Stack))
	}
	return nil
}

// IncidentReporter is the data source call RemoteSink forwards to.
type IncidentReporter interface {
	ReportIncident(ctx context.Context, incident *domain.Incident) error
}

// RemoteSink forwards incidents to the data source's telemetry endpoint.
type RemoteSink struct {
	Reporter IncidentReporter
	// Timeout bounds each report. Defaults to 5s.
	Timeout time.Duration
}

func (s RemoteSink) Report(ctx context.Context, inc domain.Incident) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Reporter.ReportIncident(ctx, &inc)
}

// MultiSink reports to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Report(ctx context.Context, inc domain.Incident) error {
	var errs []error
	for _, s := range m {
		if err := s.Report(ctx, inc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps incidents in memory.
type MemorySink struct {
	mu        sync.Mutex
	incidents []domain.Incident
}

func (s *MemorySink) Report(_ context.Context, inc domain.Incident) error {
	s.mu.Lock()
	s.incidents = append(s.incidents, inc)
	s.mu.Unlock()
	return nil
}

// Incidents returns a copy of everything reported so far.
func (s *MemorySink) Incidents() []domain.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Incident(nil), s.incidents...)
}
