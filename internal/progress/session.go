package progress

import (
	"sync"
	"time"

	"github.com/maraichr/pictor/internal/bulk"
)

// subscriberBuffer is the per-subscriber event queue depth. A subscriber that
// falls this far behind misses intermediate progress events but keeps its
// place in the fan-out set; every event carries the full aggregate, so the
// next delivered event catches it up.
const subscriberBuffer = 64

// FileRecord tracks one file through the upload pipeline. Stage is the only
// field that changes while processing; Result and Error are set once at the
// terminal stage. Each record is written only by its own pipeline execution.
type FileRecord struct {
	Ref      string `json:"ref"`
	FileName string `json:"file_name"`
	Stage    Stage  `json:"stage"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Event is one message pushed to subscribers.
type Event struct {
	Type string `json:"type"` // "connected", "progress", "complete"
	Data any    `json:"data"`
}

// Snapshot is the full aggregate state of a session, delivered on subscribe
// and recomputed for every progress event so late joiners never see a blank
// slate.
type Snapshot struct {
	SessionID  string       `json:"session_id"`
	Total      int          `json:"total"`
	Completed  int          `json:"completed"`
	Failed     int          `json:"failed"`
	Processing int          `json:"processing"`
	Percent    float64      `json:"percent"`
	Files      []FileRecord `json:"files"`
}

// Session is the live state of one batch-with-progress run: the per-file
// records plus the subscriber fan-out set. All mutation and broadcast goes
// through one mutex, so per-session writes are serialized; sessions never
// contend with each other.
type Session struct {
	ID        string
	Total     int
	StartedAt time.Time

	mu       sync.Mutex
	files    map[string]*FileRecord
	order    []string
	subs     map[*Subscriber]struct{}
	terminal bool
	done     chan struct{}
}

func newSession(id string, total int) *Session {
	return &Session{
		ID:        id,
		Total:     total,
		StartedAt: time.Now(),
		files:     make(map[string]*FileRecord, total),
		subs:      make(map[*Subscriber]struct{}),
		done:      make(chan struct{}),
	}
}

// Done is closed once the session reaches terminal. The background batch task
// is owned by the session, not the originating request; Done is its handle.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// AddFile registers a file in stage pending. Called once per unit before the
// batch starts.
func (s *Session) AddFile(ref, fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.files[ref]; exists {
		return
	}
	s.files[ref] = &FileRecord{Ref: ref, FileName: fileName, Stage: StagePending}
	s.order = append(s.order, ref)
}

// SetStage advances a file to a non-terminal stage and broadcasts the
// recomputed aggregate. Regressions and transitions out of a terminal stage
// are ignored, which makes stage monotonicity structural.
func (s *Session) SetStage(ref string, stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[ref]
	if !ok || !canAdvance(f.Stage, stage) {
		return
	}
	f.Stage = stage
	s.broadcastLocked(Event{Type: "progress", Data: s.snapshotLocked()})
}

// CompleteFile moves a file to the completed stage with its result.
func (s *Session) CompleteFile(ref string, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[ref]
	if !ok || !canAdvance(f.Stage, StageCompleted) {
		return
	}
	f.Stage = StageCompleted
	f.Result = result
	s.broadcastLocked(Event{Type: "progress", Data: s.snapshotLocked()})
}

// FailFile moves a file to the failed stage with a descriptive error.
func (s *Session) FailFile(ref, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[ref]
	if !ok || !canAdvance(f.Stage, StageFailed) {
		return
	}
	f.Stage = StageFailed
	f.Error = errMsg
	s.broadcastLocked(Event{Type: "progress", Data: s.snapshotLocked()})
}

// finish flips the session terminal exactly once and broadcasts the complete
// event carrying the full batch outcome.
func (s *Session) finish(outcome *bulk.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	s.terminal = true
	s.broadcastLocked(Event{Type: "complete", Data: outcome})
	close(s.done)
}

// Terminal reports whether the session has finished.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Snapshot returns the current aggregate state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: s.ID,
		Total:     s.Total,
		Files:     make([]FileRecord, 0, len(s.order)),
	}
	for _, ref := range s.order {
		f := s.files[ref]
		snap.Files = append(snap.Files, *f)
		switch {
		case f.Stage == StageCompleted:
			snap.Completed++
		case f.Stage == StageFailed:
			snap.Failed++
		case f.Stage != StagePending:
			snap.Processing++
		}
	}
	if snap.Total > 0 {
		snap.Percent = float64(snap.Completed+snap.Failed) / float64(snap.Total) * 100
	}
	return snap
}

func (s *Session) broadcastLocked(ev Event) {
	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			// Slow consumer: skip this event rather than block the batch.
		}
	}
}
