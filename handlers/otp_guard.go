package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// OTPGuardConfig holds abuse protection settings for the OTP endpoints
type OTPGuardConfig struct {
	PhoneMaxRequests int           // codes per phone per window
	PhoneWindow      time.Duration // request counting window
	IPRequestRate    rate.Limit    // sustained per-IP request rate
	IPBurst          int
	VerifyMaxFails   int           // failed verifications per phone per window
	VerifyWindow     time.Duration
}

// DefaultOTPGuardConfig returns the default configuration
func DefaultOTPGuardConfig() OTPGuardConfig {
	return OTPGuardConfig{
		PhoneMaxRequests: 5,
		PhoneWindow:      10 * time.Minute,
		IPRequestRate:    rate.Every(2 * time.Second),
		IPBurst:          5,
		VerifyMaxFails:   10,
		VerifyWindow:     10 * time.Minute,
	}
}

type guardEntry struct {
	count     int
	expiresAt time.Time
}

// OTPGuard throttles challenge issuance and verification. Per-phone
// counters live in redis so they hold across replicas; per-IP limiting
// uses in-process token buckets. On redis failure counting degrades to
// the local map, matching the challenge store's behavior.
type OTPGuard struct {
	redis        *redis.Client
	redisEnabled bool
	config       OTPGuardConfig
	keyPrefix    string
	localCounts  sync.Map
	ipLimiters   sync.Map
}

var (
	otpGuard     *OTPGuard
	otpGuardOnce sync.Once
)

// GetOTPGuard returns the singleton instance
func GetOTPGuard() *OTPGuard {
	return otpGuard
}

// InitOTPGuard initializes the guard, sharing the challenge store's
// redis client.
func InitOTPGuard(store *OTPStore) *OTPGuard {
	otpGuardOnce.Do(func() {
		otpGuard = &OTPGuard{
			redis:        store.redis,
			redisEnabled: store.redisEnabled,
			config:       DefaultOTPGuardConfig(),
			keyPrefix:    "sc:otpguard:",
		}
		go otpGuard.cleanupLocal()
	})
	return otpGuard
}

// newOTPGuardForTest builds a guard without redis, for tests.
func newOTPGuardForTest(config OTPGuardConfig) *OTPGuard {
	return &OTPGuard{config: config, keyPrefix: "sc:otpguard:"}
}

// AllowRequest reports whether a new challenge may be issued for this
// phone number from this IP.
func (g *OTPGuard) AllowRequest(ctx context.Context, ip, phoneNumber string) bool {
	if !g.ipLimiter(ip).Allow() {
		return false
	}
	count := g.increment(ctx, "req:"+phoneNumber, g.config.PhoneWindow)
	return count <= g.config.PhoneMaxRequests
}

// AllowVerify reports whether another verification attempt is permitted
// for this phone number.
func (g *OTPGuard) AllowVerify(ctx context.Context, phoneNumber string) bool {
	count := g.currentCount(ctx, "fail:"+phoneNumber)
	return count < g.config.VerifyMaxFails
}

// RecordVerifyFailure counts a failed verification attempt.
func (g *OTPGuard) RecordVerifyFailure(ctx context.Context, phoneNumber string) {
	g.increment(ctx, "fail:"+phoneNumber, g.config.VerifyWindow)
}

// RecordVerifySuccess resets the failure counter.
func (g *OTPGuard) RecordVerifySuccess(ctx context.Context, phoneNumber string) {
	if g.redisEnabled {
		g.redis.Del(ctx, g.keyPrefix+"fail:"+phoneNumber)
	}
	g.localCounts.Delete("fail:" + phoneNumber)
}

func (g *OTPGuard) ipLimiter(ip string) *rate.Limiter {
	if v, ok := g.ipLimiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(g.config.IPRequestRate, g.config.IPBurst)
	actual, _ := g.ipLimiters.LoadOrStore(ip, limiter)
	return actual.(*rate.Limiter)
}

func (g *OTPGuard) increment(ctx context.Context, keySuffix string, ttl time.Duration) int {
	if g.redisEnabled {
		key := g.keyPrefix + keySuffix
		pipe := g.redis.Pipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		if _, err := pipe.Exec(ctx); err == nil {
			return int(incr.Val())
		}
		LogWarn("OTPGuard: redis counter failed, using local counter")
	}

	count := 1
	if v, ok := g.localCounts.Load(keySuffix); ok {
		if e, ok := v.(guardEntry); ok && time.Now().Before(e.expiresAt) {
			count = e.count + 1
		}
	}
	g.localCounts.Store(keySuffix, guardEntry{count: count, expiresAt: time.Now().Add(ttl)})
	return count
}

func (g *OTPGuard) currentCount(ctx context.Context, keySuffix string) int {
	if g.redisEnabled {
		if count, err := g.redis.Get(ctx, g.keyPrefix+keySuffix).Int(); err == nil {
			return count
		}
	}
	if v, ok := g.localCounts.Load(keySuffix); ok {
		if e, ok := v.(guardEntry); ok && time.Now().Before(e.expiresAt) {
			return e.count
		}
	}
	return 0
}

func (g *OTPGuard) cleanupLocal() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		g.localCounts.Range(func(key, value interface{}) bool {
			if e, ok := value.(guardEntry); ok && now.After(e.expiresAt) {
				g.localCounts.Delete(key)
			}
			return true
		})
	}
}
