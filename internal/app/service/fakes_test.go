package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jose-valero/skipcord-bot/internal/domain"
	"github.com/jose-valero/skipcord-bot/internal/infra/storage"
)

// fakeExec registra las acciones que le piden y avisa por done cuando cada
// una termina, para que los tests esperen sin sleeps ciegos.
type fakeExec struct {
	mu    sync.Mutex
	calls []string
	err   error
	gate  chan struct{} // si no es nil, la acción se queda esperando acá
	done  chan string
}

func newFakeExec() *fakeExec {
	return &fakeExec{done: make(chan string, 16)}
}

func (f *fakeExec) record(call string) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	err := f.err
	f.mu.Unlock()
	f.done <- call
	return err
}

func (f *fakeExec) MoveUser(_ context.Context, userID, _, toChannel string) error {
	return f.record(fmt.Sprintf("move:%s:%s", userID, toChannel))
}

func (f *fakeExec) ApplyTimeout(_ context.Context, userID string, d time.Duration, _ string) error {
	return f.record(fmt.Sprintf("timeout:%s:%s", userID, d))
}

func (f *fakeExec) RemoveTimeout(_ context.Context, userID string) error {
	return f.record(fmt.Sprintf("untimeout:%s", userID))
}

func (f *fakeExec) wait(t interface{ Fatalf(string, ...any) }) string {
	select {
	case call := <-f.done:
		return call
	case <-time.After(2 * time.Second):
		t.Fatalf("fakeExec: ninguna acción llegó a tiempo")
		return ""
	}
}

func (f *fakeExec) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeAudit es un archivo histórico en memoria.
type fakeAudit struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
	cleared int
}

func (f *fakeAudit) Insert(_ context.Context, e storage.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) ListSince(_ context.Context, guildID string, since time.Time, limit int) ([]storage.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.AuditEntry
	for _, e := range f.entries {
		if e.GuildID == guildID && !e.CreatedAt.Before(since) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAudit) Clear(_ context.Context, guildID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.entries))
	f.entries = nil
	f.cleared++
	return n, nil
}

// fakeNotifier acumula lo publicado.
type fakeNotifier struct {
	mu       sync.Mutex
	digests  []digestCall
	events   []string
	operator []string
}

type digestCall struct {
	kind    domain.EventKind
	members []domain.Member
}

func (f *fakeNotifier) PostDigest(_ context.Context, kind domain.EventKind, members []domain.Member, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]domain.Member, len(members))
	copy(cp, members)
	f.digests = append(f.digests, digestCall{kind: kind, members: cp})
	return nil
}

func (f *fakeNotifier) PostEvent(_ context.Context, kind domain.EventKind, m domain.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf("%s:%s", kind, m.ID))
	return nil
}

func (f *fakeNotifier) PostOperatorError(_ context.Context, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operator = append(f.operator, payload)
	return nil
}

func (f *fakeNotifier) digestCalls() []digestCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]digestCall, len(f.digests))
	copy(out, f.digests)
	return out
}

func (f *fakeNotifier) operatorErrors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.operator))
	copy(out, f.operator)
	return out
}
