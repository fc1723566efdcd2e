package discord

import (
	"sync"
	"time"
)

// userLimiter enfría los comandos públicos por usuario: una invocación
// habilitada por ventana, el resto se ignora en silencio.
type userLimiter struct {
	mu      sync.Mutex
	readyAt map[string]time.Time
	window  time.Duration
}

func newUserLimiter(window time.Duration) *userLimiter {
	return &userLimiter{readyAt: map[string]time.Time{}, window: window}
}

// Allow consume el cupo del usuario si su ventana ya venció.
func (l *userLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if t, ok := l.readyAt[userID]; ok && now.Before(t) {
		return false
	}
	l.readyAt[userID] = now.Add(l.window)
	return true
}
