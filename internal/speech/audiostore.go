package speech

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAudioTTL is how long a played synthesis artifact stays on disk
// before the sweeper deletes it.
const DefaultAudioTTL = 30 * time.Second

// AudioStore holds synthesized audio artifacts on disk while the telephony
// provider fetches them for playback. Each file is owned by the call that
// produced it: deleted a fixed delay after being written, and again at
// session cleanup, whichever comes first.
type AudioStore struct {
	dir string
	ttl time.Duration

	mu    sync.Mutex
	files map[string]audioFile

	clock func() time.Time
}

type audioFile struct {
	sessionID string
	createdAt time.Time
}

func NewAudioStore(dir string, ttl time.Duration) (*AudioStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "voiceagent-audio")
	}
	if ttl <= 0 {
		ttl = DefaultAudioTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: create audio dir: %w", err)
	}
	return &AudioStore{
		dir:   dir,
		ttl:   ttl,
		files: make(map[string]audioFile),
		clock: time.Now,
	}, nil
}

// Dir is the directory artifacts are written to; the HTTP layer serves it
// under /audio/.
func (s *AudioStore) Dir() string { return s.dir }

// Put writes one synthesized artifact and returns its file name.
func (s *AudioStore) Put(sessionID string, audio []byte) (string, error) {
	name := uuid.NewString() + ".mulaw"
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("speech: write audio artifact: %w", err)
	}

	s.mu.Lock()
	s.files[name] = audioFile{sessionID: sessionID, createdAt: s.clock()}
	s.mu.Unlock()
	return name, nil
}

// Path resolves a stored artifact name to its on-disk path.
func (s *AudioStore) Path(name string) (string, bool) {
	s.mu.Lock()
	_, ok := s.files[name]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

// Remove deletes one artifact.
func (s *AudioStore) Remove(name string) {
	s.mu.Lock()
	_, ok := s.files[name]
	delete(s.files, name)
	s.mu.Unlock()
	if ok {
		_ = os.Remove(filepath.Join(s.dir, name))
	}
}

// RemoveSession deletes every artifact owned by a session. Called during
// session cleanup.
func (s *AudioStore) RemoveSession(sessionID string) int {
	s.mu.Lock()
	doomed := make([]string, 0)
	for name, f := range s.files {
		if f.sessionID == sessionID {
			doomed = append(doomed, name)
			delete(s.files, name)
		}
	}
	s.mu.Unlock()

	for _, name := range doomed {
		_ = os.Remove(filepath.Join(s.dir, name))
	}
	return len(doomed)
}

// Sweep deletes artifacts older than the TTL and reports how many went.
func (s *AudioStore) Sweep() int {
	now := s.clock()

	s.mu.Lock()
	doomed := make([]string, 0)
	for name, f := range s.files {
		if now.Sub(f.createdAt) > s.ttl {
			doomed = append(doomed, name)
			delete(s.files, name)
		}
	}
	s.mu.Unlock()

	for _, name := range doomed {
		_ = os.Remove(filepath.Join(s.dir, name))
	}
	return len(doomed)
}

// Len reports the number of tracked artifacts.
func (s *AudioStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}
