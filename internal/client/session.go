package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"scanalytics-backend/internal/insight"
	"scanalytics-backend/internal/model"
	"scanalytics-backend/internal/storage"
	"scanalytics-backend/pkg/logger"
)

var (
	ErrEmptyInput   = errors.New("input is empty")
	ErrInFlight     = errors.New("a request is already in flight")
	ErrNotReady     = errors.New("no completed result to commit")
	ErrStreamFailed = errors.New("insight stream failed")
)

// FailureNotice is shown after any failed stream.
const FailureNotice = "Something went wrong while generating insights. Please try again."

// State is an immutable snapshot of a Session.
type State struct {
	History    []model.ChatTurn
	Input      string
	Live       *insight.Result
	Settled    bool
	InFlight   bool
	Generation uint64
	Notice     string
	Err        error
	Committed  bool
}

// Session owns the conversation and the lifecycle of its one outstanding
// structured request. All methods are safe for concurrent use.
type Session struct {
	streamer Streamer
	store    *storage.SelectionStore

	mu         sync.Mutex
	history    []model.ChatTurn
	input      string
	live       *insight.Result
	settled    bool
	inFlight   bool
	generation uint64
	cancel     context.CancelFunc
	notice     string
	lastErr    error
	committed  bool
	subs       map[chan State]struct{}

	wg sync.WaitGroup
}

func NewSession(streamer Streamer, store *storage.SelectionStore) *Session {
	return &Session{
		streamer: streamer,
		store:    store,
		subs:     make(map[chan State]struct{}),
	}
}

// Submit appends a user turn and starts a streaming call with the full
// history. It returns ErrEmptyInput or ErrInFlight without side effects.
func (s *Session) Submit(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if s.inFlight {
		return ErrInFlight
	}

	s.history = append(s.history, model.NewTurn(model.RoleUser, text))
	s.input = ""
	s.generation++
	s.live = nil
	s.settled = false
	s.committed = false
	s.notice = ""
	s.lastErr = nil
	s.inFlight = true

	callCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	gen := s.generation
	history := append([]model.ChatTurn(nil), s.history...)
	s.publishLocked()

	s.wg.Add(1)
	go s.run(callCtx, cancel, gen, history)
	return nil
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, gen uint64, history []model.ChatTurn) {
	defer s.wg.Done()
	defer cancel()

	events, err := s.streamer.Stream(ctx, history)
	if err != nil {
		s.OnStreamError(gen, err)
		return
	}
	for ev := range events {
		switch ev.Type {
		case insight.EventPartial:
			s.OnPartialResult(gen, ev.Result)
		case insight.EventComplete:
			s.OnStreamComplete(gen, ev.Result)
			return
		case insight.EventError:
			s.OnStreamError(gen, ev.Err)
			return
		}
	}
	s.OnStreamError(gen, ErrStreamFailed)
}

// OnPartialResult replaces the live result when gen is current. It reports
// whether the snapshot was applied.
func (s *Session) OnPartialResult(gen uint64, partial insight.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(gen) {
		return false
	}
	r := partial.Clone()
	s.live = &r
	s.publishLocked()
	return true
}

// OnStreamComplete settles the live result and, when the verbal response is
// non-empty, appends it as an assistant turn.
func (s *Session) OnStreamComplete(gen uint64, result insight.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(gen) {
		return false
	}
	r := result.Clone()
	s.live = &r
	s.settled = true
	s.inFlight = false
	s.cancel = nil
	if r.Response != "" {
		s.history = append(s.history, model.NewTurn(model.RoleAssistant, r.Response))
	}
	s.publishLocked()
	return true
}

// OnStreamError ends the in-flight call, keeping history as it was.
func (s *Session) OnStreamError(gen uint64, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(gen) {
		return false
	}
	logger.Warnf("insight stream %d failed: %v", gen, err)
	s.inFlight = false
	s.cancel = nil
	s.notice = FailureNotice
	s.lastErr = err
	s.publishLocked()
	return true
}

// Reset clears the conversation and aborts any outstanding call. Events of
// earlier calls are discarded from here on.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.history = nil
	s.live = nil
	s.settled = false
	s.inFlight = false
	s.notice = ""
	s.lastErr = nil
	s.committed = false
	s.publishLocked()
}

// Commit persists the settled proposals. It fails with ErrNotReady until a
// stream has completed.
func (s *Session) Commit() error {
	s.mu.Lock()
	if !s.settled || s.live == nil {
		s.mu.Unlock()
		return ErrNotReady
	}
	gen := s.generation
	queries := s.live.Clone().Queries
	s.mu.Unlock()

	if err := s.store.Save(storage.Selection{Queries: queries}); err != nil {
		return fmt.Errorf("commit selection: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.committed = true
		s.publishLocked()
	}
	return nil
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
	s.publishLocked()
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that always holds the newest state; a slow
// reader skips intermediate states. Call the returned func to stop.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// Wait blocks until every started call has delivered its terminal event or
// been discarded.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) currentLocked(gen uint64) bool {
	return gen == s.generation && s.inFlight
}

func (s *Session) snapshotLocked() State {
	st := State{
		History:    append([]model.ChatTurn(nil), s.history...),
		Input:      s.input,
		Settled:    s.settled,
		InFlight:   s.inFlight,
		Generation: s.generation,
		Notice:     s.notice,
		Err:        s.lastErr,
		Committed:  s.committed,
	}
	if s.live != nil {
		r := s.live.Clone()
		st.Live = &r
	}
	return st
}

// publishLocked replaces whatever each subscriber has not read yet.
func (s *Session) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	st := s.snapshotLocked()
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
