package session

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"copytrade-core/internal/events"
	"copytrade-core/internal/monitor"
	"copytrade-core/internal/pattern"
	"copytrade-core/internal/progression"
	"copytrade-core/pkg/broker"
	"copytrade-core/pkg/db"
)

// executeTrade runs the trade procedure under ExecutingTrade:
//
//  1. wait the settling delay,
//  2. fold the last settled outcome into the capital cursor (or force
//     index 0 on the first trade since start),
//  3. re-check the brokerage for pending orders and bail out if any;
//     the remote source of truth wins over local state,
//  4. place the order at the progression's stake,
//  5. on failure, restore the capital cursor to its pre-trade values,
//  6. on success, persist the order and start completion polling.
func (s *Session) executeTrade(dir pattern.Direction) {
	s.mu.Lock()
	cred := s.credential
	cfg := s.cfg
	prevIndex := s.capitalIndex
	prevLosses := s.consecutiveLosses
	prevFirst := s.firstTrade
	s.mu.Unlock()

	if cred == "" {
		return // stopped mid-flight
	}

	// Let the brokerage's own session state settle before acting.
	select {
	case <-s.ctx.Done():
		return
	case <-time.After(s.opts.SettleDelay):
	}

	if prevFirst {
		s.mu.Lock()
		s.capitalIndex = 0
		s.firstTrade = false
		s.mu.Unlock()
	} else {
		timer := s.brokerTimer()
		last, err := s.deps.Broker.LastCompletedOrder(s.ctx, cred)
		timer.Stop()
		if err != nil {
			log.Printf("session %s: last completed order lookup failed: %v", s.userID, err)
			s.publish(events.KindError, map[string]any{"error": err.Error()})
			return
		}
		if last != nil {
			outcome := progression.Loss
			if last.Status == broker.StatusWin {
				outcome = progression.Win
			}
			idx, losses := progression.Advance(prevIndex, prevLosses, outcome)
			s.mu.Lock()
			s.capitalIndex = idx
			s.consecutiveLosses = losses
			s.mu.Unlock()
		}
	}

	// The brokerage allows one pending order per user; trust it over any
	// local belief, and treat a failed check the same as a pending order.
	if s.deps.Broker.HasPendingOrders(s.ctx, cred) {
		log.Printf("session %s: pending order present, skipping trade", s.userID)
		s.restoreCapital(prevIndex, prevLosses, prevFirst)
		return
	}

	s.mu.Lock()
	stake := progression.NextStake(cfg.CapitalSequence, s.capitalIndex)
	s.mu.Unlock()

	timer := s.brokerTimer()
	err := s.deps.Broker.PlaceOrder(s.ctx, cred, cfg.Symbol, string(dir), stake)
	timer.Stop()
	if err != nil {
		log.Printf("session %s: order placement failed: %v", s.userID, err)
		s.restoreCapital(prevIndex, prevLosses, prevFirst)
		s.publish(events.KindError, map[string]any{"error": err.Error()})
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.IncrementTradesPlaced()
	}

	placed, err := s.deps.Broker.LatestPendingOrder(s.ctx, cred)
	if err != nil || placed == nil {
		// Placed but code unknown; the history sweep will pick it up.
		log.Printf("session %s: placed order but could not fetch its code: %v", s.userID, err)
		s.publish(events.KindNewTrade, map[string]any{
			"symbol": cfg.Symbol, "type": string(dir), "amount": stake,
		})
		return
	}

	if s.Status() == StatusStopped {
		return // stopped while placing; discard the result
	}

	order := db.Order{
		ID:         uuid.NewString(),
		OrderCode:  placed.Code,
		UserID:     s.userID,
		StrategyID: cfg.ID,
		Symbol:     cfg.Symbol,
		Type:       string(dir),
		Amount:     stake,
		Status:     db.StatusPending,
		OpenPrice:  placed.OpenPrice,
	}
	if err := s.deps.Store.CreateOrder(s.ctx, order); err != nil {
		log.Printf("session %s: persist order %s: %v", s.userID, placed.Code, err)
	}

	s.mu.Lock()
	s.activeOrderCode = placed.Code
	s.mu.Unlock()

	s.publish(events.KindNewTrade, order)
	s.publishState()

	go s.pollCompletion(cred, placed.Code)
}

// brokerTimer times one brokerage round trip; a nil metrics sink yields
// a timer that records nothing.
func (s *Session) brokerTimer() *monitor.Timer {
	if s.deps.Metrics == nil {
		return monitor.NewTimer(nil)
	}
	return monitor.NewTimer(s.deps.Metrics.BrokerLatency)
}

func (s *Session) restoreCapital(index, losses int, first bool) {
	s.mu.Lock()
	s.capitalIndex = index
	s.consecutiveLosses = losses
	s.firstTrade = first
	s.mu.Unlock()
}

// pollCompletion polls the brokerage for one order's settlement. Bounded:
// if the order has not settled within the attempt budget, polling stops
// silently and the full-history sweep corrects the record later.
func (s *Session) pollCompletion(cred, code string) {
	for attempt := 0; attempt < s.opts.PollMax; attempt++ {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.opts.PollInterval):
		}

		timer := s.brokerTimer()
		ord, err := s.deps.Broker.FindCompleted(s.ctx, cred, code)
		timer.Stop()
		if err != nil {
			log.Printf("session %s: completion poll for %s: %v", s.userID, code, err)
			continue
		}
		if ord == nil {
			continue
		}

		if s.Status() == StatusStopped {
			return
		}

		completion := db.OrderCompletion{
			Status:         ord.Status,
			ReceivedAmount: ord.ReceivedAmount,
			OpenPrice:      ord.OpenPrice,
			ClosePrice:     ord.ClosePrice,
		}
		if err := s.deps.Store.CompleteOrderByCode(context.Background(), code, completion); err != nil {
			log.Printf("session %s: persist completion %s: %v", s.userID, code, err)
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.IncrementTradesSettled()
		}

		s.mu.Lock()
		if s.activeOrderCode == code {
			s.activeOrderCode = ""
		}
		s.mu.Unlock()

		s.publish(events.KindOrderCompleted, map[string]any{
			"order_code":      code,
			"status":          ord.Status,
			"received_amount": ord.ReceivedAmount,
			"open_price":      ord.OpenPrice,
			"close_price":     ord.ClosePrice,
		})
		return
	}
}
