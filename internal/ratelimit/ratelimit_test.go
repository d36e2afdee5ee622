package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRedisClient builds an unconnected client; these tests never reach redis.
func testRedisClient() redis.UniversalClient {
	return redis.NewClient(&redis.Options{Addr: "localhost:0"})
}

func Test_NewResolver_rejects_bad_CIDRs(t *testing.T) {
	_, err := NewResolver([]string{"10.0.0.0/8", "not-a-cidr"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parsing trusted proxy CIDR "not-a-cidr"`)
}

func Test_Resolver_identity_priority(t *testing.T) {
	resolver, err := NewResolver([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	t.Run("forwarded IP wins when the peer is a trusted proxy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.5:443"
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.5")

		identity, cookie := resolver.Resolve(req, "user-1")
		assert.Equal(t, Identity{Kind: IdentityKindIP, Value: "203.0.113.7"}, identity)
		assert.Nil(t, cookie)
	})

	t.Run("forwarded header from an untrusted peer is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.9:443"
		req.Header.Set("X-Forwarded-For", "203.0.113.7")

		identity, _ := resolver.Resolve(req, "user-1")
		assert.Equal(t, Identity{Kind: IdentityKindUser, Value: "user-1"}, identity)
	})

	t.Run("user id beats the anonymous cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "anon-123"})

		identity, _ := resolver.Resolve(req, "user-1")
		assert.Equal(t, Identity{Kind: IdentityKindUser, Value: "user-1"}, identity)
	})

	t.Run("existing anonymous cookie is reused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "anon-123"})

		identity, cookie := resolver.Resolve(req, "")
		assert.Equal(t, Identity{Kind: IdentityKindAnon, Value: "anon-123"}, identity)
		assert.Nil(t, cookie)
	})

	t.Run("first anonymous request gets a fresh cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		identity, cookie := resolver.Resolve(req, "")
		require.NotNil(t, cookie)
		assert.Equal(t, AnonCookieName, cookie.Name)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, Identity{Kind: IdentityKindAnon, Value: cookie.Value}, identity)
		assert.NotEmpty(t, cookie.Value)
	})
}

func Test_Identity_BucketKey_isolates_kinds(t *testing.T) {
	ip := Identity{Kind: IdentityKindIP, Value: "203.0.113.7"}
	user := Identity{Kind: IdentityKindUser, Value: "203.0.113.7"}

	assert.Equal(t, "rl:window:ip:203.0.113.7", ip.BucketKey("window"))
	assert.NotEqual(t, ip.BucketKey("window"), user.BucketKey("window"))
	assert.NotEqual(t, ip.BucketKey("window"), ip.BucketKey("block"))
}

func Test_NewLimiter_validation(t *testing.T) {
	_, err := NewLimiter(LimiterOptions{})
	assert.EqualError(t, err, "a redis client is required for the rate limiter")
}

func Test_NewLimiter_threshold_ordering(t *testing.T) {
	_, err := NewLimiter(LimiterOptions{
		RedisClient:   testRedisClient(),
		SoftThreshold: 100,
		HardThreshold: 50,
	})
	assert.EqualError(t, err, "the soft threshold must be below the hard threshold")
}

func Test_NewLimiter_defaults(t *testing.T) {
	limiter, err := NewLimiter(LimiterOptions{RedisClient: testRedisClient()})
	require.NoError(t, err)
	assert.Equal(t, defaultWindow, limiter.window)
	assert.Equal(t, defaultSoftThreshold, limiter.softThreshold)
	assert.Equal(t, defaultHardThreshold, limiter.hardThreshold)
	assert.Equal(t, defaultBlockDuration, limiter.blockDuration)
}

func Test_softDelay_is_capped(t *testing.T) {
	over := int64(defaultSoftThreshold) + 100
	delay := time.Duration(over-int64(defaultSoftThreshold)) * defaultSoftDelayStep
	if delay > maxSoftDelay {
		delay = maxSoftDelay
	}
	assert.Equal(t, maxSoftDelay, delay)
}
