// Package hostlist persists per-host bond data, most importantly the report
// subscription flags a host sets through its client characteristic
// configuration writes. The list survives restarts so a reconnecting host gets
// its notifications back without re-subscribing.
package hostlist

import (
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/Alia5/KEYPER/internal/configpaths"
	yaml "gopkg.in/yaml.v3"
)

// Host is one bonded peer and its stored state.
type Host struct {
	// Peer is the stable peer identifier (the bonded device address).
	Peer string `yaml:"peer"`
	// Name is the peer's advertised name, when known.
	Name string `yaml:"name,omitempty"`
	// Flags is the peer's report subscription flag set.
	Flags uint16 `yaml:"flags"`
}

// Store is a YAML-file-backed host list. The zero value is not usable; use
// New or Open. Mutations are persisted immediately; persistence failures are
// logged and the in-memory state stays authoritative.
type Store struct {
	mu    sync.Mutex
	path  string
	log   *slog.Logger
	hosts []Host
}

// New returns an empty store persisting to path. Nothing is read or written
// until the first mutation.
func New(path string, logger *slog.Logger) *Store {
	return &Store{path: path, log: logger}
}

// Open loads the host list at path, returning an empty store when the file
// does not exist yet.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := New(path, logger)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &s.hosts); err != nil {
		return nil, err
	}
	return s, nil
}

// GetFlags returns the stored subscription flags for peer and whether the
// peer is known.
func (s *Store) GetFlags(peer string) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(peer); i >= 0 {
		return s.hosts[i].Flags, true
	}
	return 0, false
}

// SetFlags sets or clears bit in peer's subscription flags, creating the peer
// entry if needed, and returns the updated flag set. The change is persisted.
func (s *Store) SetFlags(peer string, enable bool, bit uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(peer)
	if i < 0 {
		s.hosts = append(s.hosts, Host{Peer: peer})
		i = len(s.hosts) - 1
	}
	if enable {
		s.hosts[i].Flags |= bit
	} else {
		s.hosts[i].Flags &^= bit
	}
	flags := s.hosts[i].Flags
	s.save()
	return flags
}

// SetName records the peer's advertised name, creating the entry if needed.
func (s *Store) SetName(peer, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(peer)
	if i < 0 {
		s.hosts = append(s.hosts, Host{Peer: peer})
		i = len(s.hosts) - 1
	}
	if s.hosts[i].Name == name {
		return
	}
	s.hosts[i].Name = name
	s.save()
}

// Remove forgets a bonded peer. Removing an unknown peer is a no-op.
func (s *Store) Remove(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(peer)
	if i < 0 {
		return
	}
	s.hosts = append(s.hosts[:i], s.hosts[i+1:]...)
	s.save()
}

// List returns a snapshot of all known hosts.
func (s *Store) List() []Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Host, len(s.hosts))
	copy(out, s.hosts)
	return out
}

func (s *Store) index(peer string) int {
	for i := range s.hosts {
		if s.hosts[i].Peer == peer {
			return i
		}
	}
	return -1
}

// save writes the list out under the held lock.
func (s *Store) save() {
	data, err := yaml.Marshal(s.hosts)
	if err == nil {
		if dirErr := configpaths.EnsureDir(s.path); dirErr == nil {
			err = os.WriteFile(s.path, data, 0o644)
		} else {
			err = dirErr
		}
	}
	if err != nil && s.log != nil {
		s.log.Error("failed to persist host list", "path", s.path, "error", err)
	}
}
