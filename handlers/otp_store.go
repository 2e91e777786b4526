package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

// Challenge verification outcomes
var (
	ErrChallengeNotFound = errors.New("no active challenge for phone number")
	ErrCodeMismatch      = errors.New("code does not match")
)

const (
	// ChallengeTTL is how long an issued code stays valid. Verification
	// accepts one adjacent TOTP window, so real validity is at least this.
	ChallengeTTL = 5 * time.Minute

	// MaxVerifyAttempts caps wrong-code retries before a challenge is burned
	MaxVerifyAttempts = 5
)

// OTPChallenge is the stored state for one outstanding code.
// The code itself is never stored; it is derived from the secret.
type OTPChallenge struct {
	PhoneNumber string    `json:"phoneNumber"`
	Secret      string    `json:"secret"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Attempts    int       `json:"attempts"`
}

// OTPStore keeps outstanding challenges in redis with a local in-memory
// fallback for when redis is unreachable. Issuing a new challenge for a
// phone number always replaces the previous one.
type OTPStore struct {
	redis        *redis.Client
	local        sync.Map
	keyPrefix    string
	redisEnabled bool
}

var (
	otpStore     *OTPStore
	otpStoreOnce sync.Once
)

// GetOTPStore returns the singleton instance
func GetOTPStore() *OTPStore {
	return otpStore
}

// InitOTPStore initializes the challenge store and probes redis.
func InitOTPStore() *OTPStore {
	otpStoreOnce.Do(func() {
		redisAddr := os.Getenv("VALKEY_HOST")
		if redisAddr == "" {
			redisAddr = "valkey"
		}
		redisPort := os.Getenv("VALKEY_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}

		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", redisAddr, redisPort),
			Password: os.Getenv("VALKEY_PASSWORD"),
			DB:       0,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		redisEnabled := true
		if err := client.Ping(ctx).Err(); err != nil {
			LogWarn("OTPStore: redis connection failed, using local store only", "error", err)
			redisEnabled = false
		} else {
			LogInfo("OTPStore: redis connected")
		}

		otpStore = &OTPStore{
			redis:        client,
			keyPrefix:    "sc:otp:",
			redisEnabled: redisEnabled,
		}

		go otpStore.cleanupLocal()
	})
	return otpStore
}

// newOTPStoreForTest builds a store without redis, for tests.
func newOTPStoreForTest() *OTPStore {
	return &OTPStore{keyPrefix: "sc:otp:", redisEnabled: false}
}

// Issue generates a fresh 6-digit code for the phone number and stores
// the challenge, invalidating any previous one.
func (s *OTPStore) Issue(ctx context.Context, phoneNumber string) (string, time.Time, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "skycrate",
		AccountName: phoneNumber,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Period:      uint(ChallengeTTL.Seconds()),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate challenge secret: %w", err)
	}

	now := time.Now()
	code, err := totp.GenerateCodeCustom(key.Secret(), now, s.validateOpts())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to derive code: %w", err)
	}

	challenge := OTPChallenge{
		PhoneNumber: phoneNumber,
		Secret:      key.Secret(),
		IssuedAt:    now,
		ExpiresAt:   now.Add(ChallengeTTL),
	}

	if err := s.put(ctx, challenge); err != nil {
		return "", time.Time{}, err
	}

	return code, challenge.ExpiresAt, nil
}

// Verify checks the code against the stored challenge. A successful
// verification consumes the challenge; too many failures burn it.
func (s *OTPStore) Verify(ctx context.Context, phoneNumber, code string) error {
	challenge, err := s.get(ctx, phoneNumber)
	if err != nil {
		return err
	}

	if time.Now().After(challenge.ExpiresAt) {
		s.delete(ctx, phoneNumber)
		return ErrChallengeNotFound
	}

	valid, err := totp.ValidateCustom(code, challenge.Secret, challenge.IssuedAt, s.validateOpts())
	if err != nil || !valid {
		challenge.Attempts++
		if challenge.Attempts >= MaxVerifyAttempts {
			s.delete(ctx, phoneNumber)
		} else {
			_ = s.put(ctx, *challenge)
		}
		return ErrCodeMismatch
	}

	s.delete(ctx, phoneNumber)
	return nil
}

func (s *OTPStore) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(ChallengeTTL.Seconds()),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func (s *OTPStore) put(ctx context.Context, challenge OTPChallenge) error {
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return ErrChallengeNotFound
	}

	if s.redisEnabled {
		payload, err := json.Marshal(challenge)
		if err != nil {
			return fmt.Errorf("failed to encode challenge: %w", err)
		}
		if err := s.redis.Set(ctx, s.keyPrefix+challenge.PhoneNumber, payload, ttl).Err(); err != nil {
			LogWarn("OTPStore: redis write failed, falling back to local store", "error", err)
		}
	}

	s.local.Store(challenge.PhoneNumber, challenge)
	return nil
}

func (s *OTPStore) get(ctx context.Context, phoneNumber string) (*OTPChallenge, error) {
	if s.redisEnabled {
		payload, err := s.redis.Get(ctx, s.keyPrefix+phoneNumber).Bytes()
		if err == nil {
			var challenge OTPChallenge
			if err := json.Unmarshal(payload, &challenge); err == nil {
				return &challenge, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			LogWarn("OTPStore: redis read failed, falling back to local store", "error", err)
		} else {
			return nil, ErrChallengeNotFound
		}
	}

	if v, ok := s.local.Load(phoneNumber); ok {
		if challenge, ok := v.(OTPChallenge); ok {
			return &challenge, nil
		}
	}
	return nil, ErrChallengeNotFound
}

func (s *OTPStore) delete(ctx context.Context, phoneNumber string) {
	if s.redisEnabled {
		s.redis.Del(ctx, s.keyPrefix+phoneNumber)
	}
	s.local.Delete(phoneNumber)
}

// cleanupLocal periodically drops expired local challenges
func (s *OTPStore) cleanupLocal() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		s.local.Range(func(key, value interface{}) bool {
			if challenge, ok := value.(OTPChallenge); ok {
				if now.After(challenge.ExpiresAt) {
					s.local.Delete(key)
				}
			}
			return true
		})
	}
}
