package storage

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// SnapshotStore persiste el Snapshot en un archivo JSON. Las escrituras son
// atómicas (tmp + fsync + rename) y las mutaciones rápidas se coalescen en
// una sola escritura diferida.
type SnapshotStore struct {
	path     string
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	collect func() Snapshot
}

func NewSnapshotStore(path string, debounce time.Duration) *SnapshotStore {
	return &SnapshotStore{path: path, debounce: debounce}
}

// Load lee el snapshot del disco. Sin archivo → estado default. Archivo
// corrupto → se loguea y se arranca con default; nunca es fatal.
func (s *SnapshotStore) Load(moderationDefault bool) Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("snapshot: no pude leer %s: %v (arranco con estado limpio)", s.path, err)
		}
		return DefaultSnapshot(moderationDefault)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("snapshot: %s corrupto: %v (arranco con estado limpio)", s.path, err)
		return DefaultSnapshot(moderationDefault)
	}
	snap.normalize()
	return snap
}

// Save escribe el snapshot completo de forma atómica.
func (s *SnapshotStore) Save(snap Snapshot) error {
	snap.Version = SnapshotVersion
	snap.SavedAt = time.Now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

// MarkDirty agenda una escritura diferida. Mutaciones consecutivas dentro de
// la ventana comparten una sola escritura; collect se evalúa recién al final.
func (s *SnapshotStore) MarkDirty(collect func() Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collect = collect
	if s.timer != nil {
		return // ya hay una escritura agendada
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		fn := s.collect
		s.timer = nil
		s.mu.Unlock()
		if fn == nil {
			return
		}
		if err := s.Save(fn()); err != nil {
			log.Printf("snapshot: guardado diferido falló: %v", err)
		}
	})
}

// Flush fuerza la escritura pendiente (o una nueva) de forma sincrónica.
// Se usa en el shutdown para no perder nada.
func (s *SnapshotStore) Flush(collect func() Snapshot) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.collect = nil
	s.mu.Unlock()
	return s.Save(collect())
}
