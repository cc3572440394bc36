package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sahaa21/MindMend/internal/assistant"
	"github.com/Sahaa21/MindMend/internal/listen"
)

var (
	// ErrSessionNotFound is returned for an unknown session ID
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when max_sessions is reached
	ErrTooManySessions = errors.New("too many sessions")
)

// defaultCleanupInterval is how often expired sessions are swept
const defaultCleanupInterval = 30 * time.Second

// LoopFactory creates the listen loop owned by a new session
type LoopFactory func() (*listen.Loop, error)

// Recorder captures and transcribes a fixed-length recording
type Recorder interface {
	RecordAndTranscribe(ctx context.Context, duration time.Duration) (listen.Transcript, error)
}

// Responder answers a transcribed question
type Responder interface {
	Respond(ctx context.Context, text, language string, probability float64) assistant.Reply
}

// Metrics receives session gauge updates. A nil Metrics is allowed.
type Metrics interface {
	SetActiveSessions(n int)
}

// Config contains session manager configuration
type Config struct {
	MaxSessions     int
	Timeout         time.Duration // idle time before a finished session is removed
	RecordOnWake    bool
	RecordDuration  time.Duration
	CleanupInterval time.Duration
}

// Exchange is one question and answer captured after a wake
type Exchange struct {
	Time     time.Time `json:"time"`
	Phrase   string    `json:"phrase"`
	Question string    `json:"question"`
	Answer   string    `json:"answer,omitempty"`
	Language string    `json:"language,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Session is one client's listen loop plus its conversation history
type Session struct {
	ID        string
	CreatedAt time.Time

	loop *listen.Loop

	mu           sync.RWMutex
	lastActivity time.Time
	history      []Exchange
}

// Info is a session snapshot for APIs and monitoring
type Info struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	Status       listen.Status `json:"status"`
	History      []Exchange    `json:"history"`
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]Exchange, len(s.history))
	copy(history, s.history)

	return Info{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
		Status:       s.loop.Status(),
		History:      history,
	}
}

func (s *Session) appendExchange(e Exchange) {
	s.mu.Lock()
	s.history = append(s.history, e)
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Manager owns all sessions and their listen loops
type Manager struct {
	cfg       Config
	newLoop   LoopFactory
	recorder  Recorder
	responder Responder
	metrics   Metrics
	logger    *slog.Logger

	sessions map[string]*Session
	mu       sync.RWMutex

	// Lifetime of every loop and follow-up recording
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates a manager and starts its cleanup routine
func NewManager(cfg Config, newLoop LoopFactory, recorder Recorder, logger *slog.Logger) (*Manager, error) {
	if newLoop == nil {
		return nil, fmt.Errorf("loop factory cannot be nil")
	}

	if cfg.MaxSessions <= 0 {
		return nil, fmt.Errorf("max sessions must be positive, got %d", cfg.MaxSessions)
	}

	if cfg.RecordOnWake && (recorder == nil || cfg.RecordDuration <= 0) {
		return nil, fmt.Errorf("record on wake needs a recorder and a positive duration")
	}

	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		cfg:      cfg,
		newLoop:  newLoop,
		recorder: recorder,
		logger:   logger,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// WithResponder answers questions recorded after a wake
func (m *Manager) WithResponder(r Responder) *Manager {
	m.responder = r
	return m
}

// WithMetrics reports the active session count to mx
func (m *Manager) WithMetrics(mx Metrics) *Manager {
	m.metrics = mx
	return m
}

// StartListening starts a wake cycle for the session and returns its ID.
// An empty id creates a new session.
func (m *Manager) StartListening(id string) (string, error) {
	session, created, err := m.getOrCreate(id)
	if err != nil {
		return "", err
	}

	if err := session.loop.Start(m.ctx); err != nil {
		if created {
			m.RemoveSession(session.ID)
		}
		return "", err
	}
	session.touch()

	if m.cfg.RecordOnWake {
		done := session.loop.Done()
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.followUp(session, done)
		}()
	}

	m.logger.Info("Session listening",
		slog.String("session_id", session.ID),
		slog.Bool("new_session", created),
	)

	return session.ID, nil
}

// PollState returns the listen status of a session
func (m *Manager) PollState(id string) (listen.Status, error) {
	session, err := m.lookup(id)
	if err != nil {
		return listen.Status{}, err
	}

	session.touch()
	return session.loop.Status(), nil
}

// StopListening stops the session's wake cycle
func (m *Manager) StopListening(id string) error {
	session, err := m.lookup(id)
	if err != nil {
		return err
	}

	session.loop.Stop()
	session.touch()
	return nil
}

// RecordAndTranscribe records from the shared source and transcribes it
func (m *Manager) RecordAndTranscribe(ctx context.Context, duration time.Duration) (listen.Transcript, error) {
	if m.recorder == nil {
		return listen.Transcript{}, fmt.Errorf("no recorder configured")
	}
	return m.recorder.RecordAndTranscribe(ctx, duration)
}

// RecordExchange appends a question and answer to the session's history,
// creating the session when id is unknown. It returns the session ID.
func (m *Manager) RecordExchange(id string, e Exchange) (string, error) {
	session, created, err := m.getOrCreate(id)
	if err != nil {
		return "", err
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	session.appendExchange(e)

	m.logger.Debug("Exchange recorded",
		slog.String("session_id", session.ID),
		slog.Bool("new_session", created),
	)

	return session.ID, nil
}

// Get returns a snapshot of one session
func (m *Manager) Get(id string) (Info, error) {
	session, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return session.Info(), nil
}

// Sessions returns snapshots of all sessions, oldest first
func (m *Manager) Sessions() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.Info())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	return infos
}

// GetActiveSessionCount returns the number of sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RemoveSession stops and forgets a session
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false
	}

	session.loop.Stop()
	m.reportCount(count)

	m.logger.Info("Session removed",
		slog.String("session_id", id),
		slog.Duration("age", time.Since(session.CreatedAt)),
	)

	return true
}

// Stop ends every session and waits for background work to finish
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.mu.RLock()
	for _, session := range m.sessions {
		session.loop.Stop()
	}
	m.mu.RUnlock()

	m.cancel()
	<-m.cleanup
	m.wg.Wait()

	m.logger.Info("Session manager stopped",
		slog.Int("remaining_sessions", m.GetActiveSessionCount()),
	)
}

func (m *Manager) lookup(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

func (m *Manager) getOrCreate(id string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, exists := m.sessions[id]; exists {
		return session, false, nil
	}

	if len(m.sessions) >= m.cfg.MaxSessions {
		return nil, false, fmt.Errorf("%w (max %d)", ErrTooManySessions, m.cfg.MaxSessions)
	}

	if id == "" {
		id = uuid.NewString()
	}

	loop, err := m.newLoop()
	if err != nil {
		return nil, false, fmt.Errorf("failed to create listen loop: %w", err)
	}

	now := time.Now()
	session := &Session{
		ID:           id,
		CreatedAt:    now,
		loop:         loop,
		lastActivity: now,
	}
	m.sessions[id] = session
	m.reportCount(len(m.sessions))

	m.logger.Info("Created new session", slog.String("session_id", id))

	return session, true, nil
}

// followUp records and answers a question once the cycle wakes
func (m *Manager) followUp(session *Session, done <-chan struct{}) {
	select {
	case <-done:
	case <-m.ctx.Done():
		return
	}

	status := session.loop.Status()
	if status.State != listen.StateAwake {
		return
	}

	exchange := Exchange{
		Time:   time.Now(),
		Phrase: status.Phrase,
	}

	transcript, err := m.recorder.RecordAndTranscribe(m.ctx, m.cfg.RecordDuration)
	if err != nil {
		m.logger.Warn("Follow-up recording failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		exchange.Error = err.Error()
		session.appendExchange(exchange)
		return
	}

	exchange.Question = transcript.Text
	exchange.Language = transcript.Language

	if m.responder != nil && transcript.Text != "" {
		reply := m.responder.Respond(m.ctx, transcript.Text, transcript.Language, transcript.Confidence)
		exchange.Answer = reply.Answer
		exchange.Language = reply.Language
	}

	session.appendExchange(exchange)

	m.logger.Info("Follow-up question captured",
		slog.String("session_id", session.ID),
		slog.String("phrase", exchange.Phrase),
		slog.Int("question_length", len(exchange.Question)),
	)
}

func (m *Manager) reportCount(n int) {
	if m.metrics != nil {
		m.metrics.SetActiveSessions(n)
	}
}

// startCleanupRoutine runs in a separate goroutine to remove expired sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", m.cfg.Timeout),
		slog.Duration("check_interval", m.cfg.CleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes sessions that are not listening and have
// been idle longer than the timeout
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for id, session := range m.sessions {
		if session.loop.State() == listen.StateListening {
			continue
		}

		session.mu.RLock()
		lastActivity := session.lastActivity
		session.mu.RUnlock()

		if now.Sub(lastActivity) > m.cfg.Timeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up expired sessions",
			slog.Int("expired_count", len(expired)),
		)

		for _, id := range expired {
			m.RemoveSession(id)
		}
	}
}
