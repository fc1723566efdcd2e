package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jose-valero/skipcord-bot/internal/domain"
)

// DigestService agrupa eventos de membresía en lotes por tipo para no
// inundar el canal de anuncios. La ventana es fija: arranca con el primer
// evento del lote y el flush sale al vencer, lleguen los eventos que lleguen
// en el medio (los que llegan después del cierre abren lote nuevo).
type DigestService struct {
	notifier Notifier
	window   time.Duration
	// enabled se consulta recién al momento del flush: apagar las
	// notificaciones descarta también los lotes ya abiertos.
	enabled func() bool

	mu      sync.Mutex
	batches map[domain.EventKind]*digestBatch
}

type digestBatch struct {
	members []domain.Member
	seen    map[string]struct{}
	timer   *time.Timer
}

func NewDigestService(notifier Notifier, window time.Duration, enabled func() bool) *DigestService {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &DigestService{
		notifier: notifier,
		window:   window,
		enabled:  enabled,
		batches:  map[domain.EventKind]*digestBatch{},
	}
}

// Add suma un miembro al lote de su tipo, abriéndolo (y armando el timer de
// la ventana) si es el primero. El orden de llegada se preserva en el digest.
func (d *DigestService) Add(kind domain.EventKind, m domain.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.batches[kind]
	if !ok {
		b = &digestBatch{seen: map[string]struct{}{}}
		d.batches[kind] = b
		b.timer = time.AfterFunc(d.window, func() { d.flush(kind) })
	}
	if _, dup := b.seen[m.ID]; dup {
		return
	}
	b.seen[m.ID] = struct{}{}
	b.members = append(b.members, m)
}

// FlushAll cierra todos los lotes abiertos ya mismo (shutdown).
func (d *DigestService) FlushAll() {
	d.mu.Lock()
	kinds := make([]domain.EventKind, 0, len(d.batches))
	for kind, b := range d.batches {
		b.timer.Stop()
		kinds = append(kinds, kind)
	}
	d.mu.Unlock()

	for _, kind := range kinds {
		d.flush(kind)
	}
}

func (d *DigestService) flush(kind domain.EventKind) {
	d.mu.Lock()
	b, ok := d.batches[kind]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.batches, kind)
	members := b.members
	d.mu.Unlock()

	if len(members) == 0 {
		return
	}
	if !d.enabled() {
		log.Printf("digest: notificaciones apagadas, lote %s (%d) descartado", kind, len(members))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.notifier.PostDigest(ctx, kind, members, nil); err != nil {
		log.Printf("digest: no pude publicar lote %s (%d miembros): %v", kind, len(members), err)
	}
}
