package middleware

import (
	"context"
	"sync"
	"time"
)

type loginAttempt struct {
	count        int
	firstAttempt time.Time
	blockedUntil time.Time
}

// LoginLimiter counts failed admin logins per IP. After maxAttempts failures
// inside window the IP is blocked for blockFor.
type LoginLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*loginAttempt
	maxAttempts int
	window      time.Duration
	blockFor    time.Duration
	now         func() time.Time
}

func NewLoginLimiter(maxAttempts int, window, blockFor time.Duration) *LoginLimiter {
	return &LoginLimiter{
		attempts:    make(map[string]*loginAttempt),
		maxAttempts: maxAttempts,
		window:      window,
		blockFor:    blockFor,
		now:         time.Now,
	}
}

// Allow reports whether ip may try to log in, and if not, for how long it has to wait.
func (l *LoginLimiter) Allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	a, ok := l.attempts[ip]
	if !ok {
		return true, 0
	}
	if now.Before(a.blockedUntil) {
		return false, a.blockedUntil.Sub(now)
	}
	if now.Sub(a.firstAttempt) > l.window {
		delete(l.attempts, ip)
		return true, 0
	}
	if a.count >= l.maxAttempts {
		a.blockedUntil = now.Add(l.blockFor)
		return false, l.blockFor
	}
	return true, 0
}

func (l *LoginLimiter) RecordFailure(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	a, ok := l.attempts[ip]
	if !ok || now.Sub(a.firstAttempt) > l.window {
		l.attempts[ip] = &loginAttempt{count: 1, firstAttempt: now}
		return
	}
	a.count++
}

func (l *LoginLimiter) Clear(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, ip)
}

// StartCleanup forgets lapsed entries every interval until ctx is done.
func (l *LoginLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.prune()
			}
		}
	}()
}

func (l *LoginLimiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for ip, a := range l.attempts {
		if now.After(a.blockedUntil) && now.Sub(a.firstAttempt) > l.window {
			delete(l.attempts, ip)
		}
	}
}
