// Package auth verifies account credentials against the credential store.
package auth

import (
	"fmt"
	"time"

	"github.com/garyburd/redigo/redis"
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/config"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// Verifier checks account credentials. VerifyPassword may block and is called from async jobs.
type Verifier interface {
	VerifyPassword(accountID uint32, credentials string) (bool, error)
}

// HashPassword hashes a raw password for storing
func HashPassword(raw string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

func checkPassword(hash string, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

// RedisVerifier keeps bcrypt password hashes in redis under <key_prefix><accountID>
type RedisVerifier struct {
	pool      *redis.Pool
	keyPrefix string
}

// NewRedisVerifier creates a verifier for the [auth] config. No connection is made until Ping or VerifyPassword.
func NewRedisVerifier(cfg *config.AuthConfig) *RedisVerifier {
	url, db, timeout := cfg.Url, cfg.DB, cfg.DialTimeout
	return &RedisVerifier{
		pool: &redis.Pool{
			MaxIdle:     4,
			IdleTimeout: 4 * time.Minute,
			Dial: func() (redis.Conn, error) {
				return redis.DialURL(url,
					redis.DialDatabase(db),
					redis.DialConnectTimeout(timeout),
					redis.DialReadTimeout(timeout),
					redis.DialWriteTimeout(timeout),
				)
			},
		},
		keyPrefix: cfg.KeyPrefix,
	}
}

func (rv *RedisVerifier) key(accountID uint32) string {
	return fmt.Sprintf("%s%d", rv.keyPrefix, accountID)
}

// Ping checks the credential store is reachable
func (rv *RedisVerifier) Ping() error {
	c := rv.pool.Get()
	defer c.Close()
	if _, err := c.Do("PING"); err != nil {
		return errors.Wrapf(common.ErrExternalDependency, "credential store: %v", err)
	}
	return nil
}

// VerifyPassword checks the credentials of the account; unknown accounts fail without error
func (rv *RedisVerifier) VerifyPassword(accountID uint32, credentials string) (bool, error) {
	c := rv.pool.Get()
	defer c.Close()

	hash, err := redis.String(c.Do("GET", rv.key(accountID)))
	if err == redis.ErrNil {
		gwlog.Debugf("auth: account %d not found", accountID)
		return false, nil
	} else if err != nil {
		return false, errors.Wrapf(common.ErrExternalDependency, "credential store: %v", err)
	}
	return checkPassword(hash, credentials), nil
}

// SetPassword stores the password of the account
func (rv *RedisVerifier) SetPassword(accountID uint32, raw string) error {
	hash, err := HashPassword(raw, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c := rv.pool.Get()
	defer c.Close()
	if _, err := c.Do("SET", rv.key(accountID), hash); err != nil {
		return errors.Wrapf(common.ErrExternalDependency, "credential store: %v", err)
	}
	return nil
}

// Close closes the connection pool
func (rv *RedisVerifier) Close() error {
	return rv.pool.Close()
}

// MemoryVerifier keeps password hashes in memory
type MemoryVerifier struct {
	hashes map[uint32]string
	cost   int
}

// NewMemoryVerifier creates an empty MemoryVerifier hashing with cost
func NewMemoryVerifier(cost int) *MemoryVerifier {
	return &MemoryVerifier{
		hashes: map[uint32]string{},
		cost:   cost,
	}
}

// SetPassword stores the password of the account
func (mv *MemoryVerifier) SetPassword(accountID uint32, raw string) error {
	hash, err := HashPassword(raw, mv.cost)
	if err != nil {
		return err
	}
	mv.hashes[accountID] = hash
	return nil
}

// VerifyPassword checks the credentials of the account
func (mv *MemoryVerifier) VerifyPassword(accountID uint32, credentials string) (bool, error) {
	hash, ok := mv.hashes[accountID]
	if !ok {
		return false, nil
	}
	return checkPassword(hash, credentials), nil
}
