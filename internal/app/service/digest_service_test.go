package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/skipcord-bot/internal/domain"
)

func TestDigestBatchesWithinWindow(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDigestService(notifier, 50*time.Millisecond, nil)

	d.Add(domain.EventLeave, domain.Member{ID: "u1", Username: "ana"})
	d.Add(domain.EventLeave, domain.Member{ID: "u2", Username: "beto"})
	d.Add(domain.EventLeave, domain.Member{ID: "u3", Username: "caro"})

	require.Eventually(t, func() bool {
		return len(notifier.digestCalls()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	call := notifier.digestCalls()[0]
	assert.Equal(t, domain.EventLeave, call.kind)
	require.Len(t, call.members, 3)
	// orden de llegada preservado
	assert.Equal(t, "u1", call.members[0].ID)
	assert.Equal(t, "u3", call.members[2].ID)
}

func TestDigestKindsBatchSeparately(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDigestService(notifier, 50*time.Millisecond, nil)

	d.Add(domain.EventLeave, domain.Member{ID: "u1"})
	d.Add(domain.EventBan, domain.Member{ID: "u2"})

	require.Eventually(t, func() bool {
		return len(notifier.digestCalls()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	kinds := map[domain.EventKind]int{}
	for _, c := range notifier.digestCalls() {
		kinds[c.kind] = len(c.members)
	}
	assert.Equal(t, map[domain.EventKind]int{domain.EventLeave: 1, domain.EventBan: 1}, kinds)
}

func TestDigestDeduplicatesWithinBatch(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDigestService(notifier, 50*time.Millisecond, nil)

	d.Add(domain.EventLeave, domain.Member{ID: "u1"})
	d.Add(domain.EventLeave, domain.Member{ID: "u1"})

	require.Eventually(t, func() bool {
		return len(notifier.digestCalls()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, notifier.digestCalls()[0].members, 1)
}

func TestDigestFlushAllOnShutdown(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDigestService(notifier, time.Hour, nil)

	d.Add(domain.EventLeave, domain.Member{ID: "u1"})
	d.Add(domain.EventJoin, domain.Member{ID: "u2"})

	d.FlushAll()
	assert.Len(t, notifier.digestCalls(), 2)
}

func TestDigestDisabledDiscardsBatch(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDigestService(notifier, time.Hour, func() bool { return false })

	d.Add(domain.EventLeave, domain.Member{ID: "u1"})
	d.FlushAll()
	assert.Empty(t, notifier.digestCalls())
}
