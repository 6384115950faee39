package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
	"github.com/lebrqksd-bot/lebrqapp-sub005/settlement"
)

const sessionIdleTTL = 60 * time.Minute

type session struct {
	id         string
	controller *settlement.Controller
	lastSeen   time.Time
}

// SessionManager keeps one reconciliation controller per admin session.
// Sessions are in-memory only: a restart loses screen state but never
// payment state, which lives on the backend and in the inconsistency store.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session

	api      settlement.PaymentAPI
	guard    *settlement.InFlightGuard
	store    *settlement.InconsistencyStore
	attempts settlement.AttemptRecorder
	logger   *logrus.Logger
}

func NewSessionManager(api settlement.PaymentAPI, guard *settlement.InFlightGuard, store *settlement.InconsistencyStore, attempts settlement.AttemptRecorder, logger *logrus.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*session),
		api:      api,
		guard:    guard,
		store:    store,
		attempts: attempts,
		logger:   logger,
	}
}

func (m *SessionManager) Create(kind models.PayeeKind) (string, *settlement.Controller) {
	opts := []settlement.ControllerOption{
		settlement.WithInFlightGuard(m.guard),
		settlement.WithInconsistencyStore(m.store),
	}
	if m.attempts != nil {
		opts = append(opts, settlement.WithAttemptRecorder(m.attempts))
	}
	ctrl := settlement.NewController(m.api, kind, m.logger, opts...)

	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = &session{id: id, controller: ctrl, lastSeen: time.Now()}
	m.mu.Unlock()
	return id, ctrl
}

func (m *SessionManager) Get(id string) (*settlement.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	s.lastSeen = time.Now()
	return s.controller, true
}

func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// EvictIdle drops sessions idle longer than the TTL, unless a payment
// needs attention: a session with a FAILED intent is kept so the retry
// payload stays reachable.
func (m *SessionManager) EvictIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) < sessionIdleTTL {
			continue
		}
		if s.controller.Snapshot().IntentState == settlement.IntentStateFailed {
			continue
		}
		delete(m.sessions, id)
		evicted++
	}
	return evicted
}

func (m *SessionManager) runJanitor(stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if n := m.EvictIdle(now); n > 0 {
				m.logger.WithFields(logrus.Fields{"evicted": n}).Info("evicted idle reconciliation sessions")
			}
		}
	}
}
