package memory

import (
	"context"
	"time"

	"famledger/internal/core"
	"famledger/internal/ledger"
)

var _ ledger.Outbox = (*Store)(nil)

func (s *Store) entry(id string) (*ledger.OutboxEntry, error) {
	for i := range s.data.outbox {
		if s.data.outbox[i].Event.ID == id {
			return &s.data.outbox[i], nil
		}
	}
	return nil, core.NotFoundf("event %s", id)
}

func (s *Store) setStatus(id string, status ledger.OutboxStatus, attempt bool, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.Status = status
	if attempt {
		e.Attempts++
	}
	if lastErr != "" {
		e.LastError = lastErr
	}
	e.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) DequeueEvents(_ context.Context, limit int) ([]ledger.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.OutboxEntry
	for _, e := range s.data.outbox {
		if len(out) >= limit {
			break
		}
		if e.Status == ledger.OutboxPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) MarkProcessing(_ context.Context, id string) error {
	return s.setStatus(id, ledger.OutboxProcessing, false, "")
}

func (s *Store) MarkPublished(_ context.Context, id string) error {
	return s.setStatus(id, ledger.OutboxPublished, false, "")
}

func (s *Store) IncrementAttempt(_ context.Context, id, lastErr string) error {
	return s.setStatus(id, ledger.OutboxPending, true, lastErr)
}

func (s *Store) MarkFailed(_ context.Context, id, lastErr string) error {
	return s.setStatus(id, ledger.OutboxFailed, true, lastErr)
}

func (s *Store) ResetStaleProcessing(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.outbox {
		if s.data.outbox[i].Status == ledger.OutboxProcessing {
			s.data.outbox[i].Status = ledger.OutboxPending
		}
	}
	return nil
}

func (s *Store) CleanupPublished(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.data.outbox[:0]
	for _, e := range s.data.outbox {
		if e.Status == ledger.OutboxPublished && e.UpdatedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	s.data.outbox = kept
	return nil
}

func (s *Store) RetryFailed(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.outbox {
		if s.data.outbox[i].Status == ledger.OutboxFailed {
			s.data.outbox[i].Status = ledger.OutboxPending
			s.data.outbox[i].Attempts = 0
		}
	}
	return nil
}

func (s *Store) OutboxStats(context.Context) (ledger.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st ledger.OutboxStats
	for _, e := range s.data.outbox {
		switch e.Status {
		case ledger.OutboxPending:
			st.Pending++
		case ledger.OutboxProcessing:
			st.Processing++
		case ledger.OutboxPublished:
			st.Published++
		case ledger.OutboxFailed:
			st.Failed++
		}
	}
	return st, nil
}
