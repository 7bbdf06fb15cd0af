// Package reconciliation keeps the local order ledger aligned with the
// brokerage. It serves two paths: a batch apply used by the settlement
// API, and a periodic sweep that catches orders whose per-order polling
// gave up.
package reconciliation

import (
	"context"
	"errors"
	"log"
	"time"

	"copytrade-core/internal/events"
	"copytrade-core/pkg/broker"
	"copytrade-core/pkg/db"
)

// Completion is one settled order reported by the brokerage side.
type Completion struct {
	OrderCode      string  `json:"order_code"`
	Status         string  `json:"status"`
	ReceivedAmount float64 `json:"received_amount"`
	OpenPrice      float64 `json:"open_price"`
	ClosePrice     float64 `json:"close_price"`
}

// ItemResult is the per-item outcome of a batch apply.
type ItemResult struct {
	OrderCode string `json:"order_code"`
	Applied   bool   `json:"applied"`
	Error     string `json:"error,omitempty"`
}

// Report summarizes a batch apply. A batch is never all-or-nothing;
// each item succeeds or fails on its own.
type Report struct {
	Applied int          `json:"applied"`
	Failed  int          `json:"failed"`
	Items   []ItemResult `json:"items"`
}

// BrokerHistory is the slice of the order gateway the sweep needs.
type BrokerHistory interface {
	ListCompleted(ctx context.Context, credential string, offset, limit int) ([]broker.Order, error)
}

// CredentialSource exposes the credentials of currently live sessions.
type CredentialSource interface {
	ActiveCredentials() map[string]string
}

// Publisher pushes settlement events to the owning user.
type Publisher interface {
	Publish(e events.Event)
}

// Service applies completions to the local ledger.
type Service struct {
	database *db.Database
	broker   BrokerHistory
	sessions CredentialSource
	hub      Publisher
	interval time.Duration
}

// NewService wires the reconciliation service. The sweep runs every
// interval once Start is called.
func NewService(database *db.Database, history BrokerHistory, sessions CredentialSource, hub Publisher, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		database: database,
		broker:   history,
		sessions: sessions,
		hub:      hub,
		interval: interval,
	}
}

// ApplyCompleted folds a batch of settlement reports into the ledger for
// one user. Unknown codes and orders belonging to other users are
// reported as failed items without touching the rest of the batch.
func (s *Service) ApplyCompleted(ctx context.Context, userID string, completions []Completion) Report {
	report := Report{Items: make([]ItemResult, 0, len(completions))}

	for _, c := range completions {
		item := ItemResult{OrderCode: c.OrderCode}

		ord, err := s.database.GetOrderByCode(ctx, c.OrderCode)
		if errors.Is(err, db.ErrNotFound) {
			item.Error = "unknown order code"
		} else if err != nil {
			item.Error = "lookup failed: " + err.Error()
		} else if ord.UserID != userID {
			item.Error = "order belongs to another user"
		} else if ord.Status != db.StatusPending {
			// Already settled; idempotent no-op counts as applied.
			item.Applied = true
		} else if err := s.apply(ctx, userID, c); err != nil {
			item.Error = err.Error()
		} else {
			item.Applied = true
		}

		if item.Applied {
			report.Applied++
		} else {
			report.Failed++
		}
		report.Items = append(report.Items, item)
	}

	return report
}

func (s *Service) apply(ctx context.Context, userID string, c Completion) error {
	completion := db.OrderCompletion{
		Status:         c.Status,
		ReceivedAmount: c.ReceivedAmount,
		OpenPrice:      c.OpenPrice,
		ClosePrice:     c.ClosePrice,
	}
	if err := s.database.CompleteOrderByCode(ctx, c.OrderCode, completion); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.Publish(events.New(userID, events.KindOrderCompleted, map[string]any{
			"order_code":      c.OrderCode,
			"status":          c.Status,
			"received_amount": c.ReceivedAmount,
			"open_price":      c.OpenPrice,
			"close_price":     c.ClosePrice,
		}))
	}
	return nil
}

// Start begins the periodic history sweep.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
	log.Printf("reconciliation sweep started (interval: %v)", s.interval)
}

// Sweep resolves stale pending orders against the brokerage history for
// every user with a live session.
func (s *Service) Sweep(ctx context.Context) {
	if s.broker == nil || s.sessions == nil {
		return
	}

	for userID, cred := range s.sessions.ActiveCredentials() {
		pending, err := s.database.ListPendingOrders(ctx, userID)
		if err != nil {
			log.Printf("reconciliation: list pending for %s: %v", userID, err)
			continue
		}
		if len(pending) == 0 {
			continue
		}

		settled, err := s.fetchCompleted(ctx, cred)
		if err != nil {
			log.Printf("reconciliation: fetch history for %s: %v", userID, err)
			continue
		}
		if len(settled) == 0 {
			continue
		}

		for _, ord := range pending {
			rec, ok := settled[ord.OrderCode]
			if !ok {
				continue
			}
			c := Completion{
				OrderCode:      ord.OrderCode,
				Status:         rec.Status,
				ReceivedAmount: rec.ReceivedAmount,
				OpenPrice:      rec.OpenPrice,
				ClosePrice:     rec.ClosePrice,
			}
			if err := s.apply(ctx, userID, c); err != nil {
				log.Printf("reconciliation: apply %s: %v", ord.OrderCode, err)
				continue
			}
			log.Printf("reconciliation: settled stale order %s (%s)", ord.OrderCode, rec.Status)
		}
	}
}

// fetchCompleted pages through recent brokerage history and indexes it by
// order code. Two pages of 50 cover any realistic polling gap.
func (s *Service) fetchCompleted(ctx context.Context, credential string) (map[string]broker.Order, error) {
	out := make(map[string]broker.Order)
	for page := 0; page < 2; page++ {
		batch, err := s.broker.ListCompleted(ctx, credential, page*50, 50)
		if err != nil {
			return nil, err
		}
		for _, o := range batch {
			out[o.Code] = o
		}
		if len(batch) < 50 {
			break
		}
	}
	return out, nil
}
