package auth

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/config"
	"golang.org/x/crypto/bcrypt"
)

func TestMemoryVerifier(t *testing.T) {
	v := NewMemoryVerifier(bcrypt.MinCost)
	assert.Equal(t, nil, v.SetPassword(1, "secret"))

	ok, err := v.VerifyPassword(1, "secret")
	assert.Equal(t, nil, err)
	assert.T(t, ok, "right password")

	ok, _ = v.VerifyPassword(1, "wrong")
	assert.T(t, !ok, "wrong password")

	ok, err = v.VerifyPassword(2, "secret")
	assert.Equal(t, nil, err)
	assert.T(t, !ok, "unknown account")
}

func TestRedisVerifierUnreachable(t *testing.T) {
	v := NewRedisVerifier(&config.AuthConfig{
		Url:         "redis://127.0.0.1:1",
		KeyPrefix:   "test:",
		DialTimeout: time.Millisecond * 200,
	})
	defer v.Close()

	assert.T(t, common.IsExternalDependency(v.Ping()), "ping should fail")
	_, err := v.VerifyPassword(1, "secret")
	assert.T(t, common.IsExternalDependency(err), "verify should fail")
	assert.Equal(t, "test:42", v.key(42))
}

func TestRedisVerifier(t *testing.T) {
	v := NewRedisVerifier(&config.AuthConfig{
		Url:         "redis://127.0.0.1:6379",
		KeyPrefix:   "gorealm_test:password:",
		DialTimeout: time.Second,
	})
	defer v.Close()
	if err := v.Ping(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	assert.Equal(t, nil, v.SetPassword(7, "hunter2"))
	ok, err := v.VerifyPassword(7, "hunter2")
	assert.Equal(t, nil, err)
	assert.T(t, ok, "right password")
	ok, _ = v.VerifyPassword(7, "hunter3")
	assert.T(t, !ok, "wrong password")
	ok, err = v.VerifyPassword(0xFFFFFFF0, "x")
	assert.Equal(t, nil, err)
	assert.T(t, !ok, "unknown account")
}
