//go:build integration

package usedjti_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"linkgate/internal/linktoken/store/usedjti"
	"linkgate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *usedjti.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = usedjti.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestFirstUseWins() {
	ctx := context.Background()

	first, err := s.store.MarkUsed(ctx, "jti-1", time.Hour)
	s.Require().NoError(err)
	s.True(first)

	second, err := s.store.MarkUsed(ctx, "jti-1", time.Hour)
	s.Require().NoError(err)
	s.False(second)
}

func (s *RedisStoreSuite) TestConcurrentMarkUsed() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			first, err := s.store.MarkUsed(ctx, "contended-jti", time.Hour)
			s.Require().NoError(err)
			if first {
				wins.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), wins.Load(), "exactly one caller should win the first use")
}

func (s *RedisStoreSuite) TestEntryExpires() {
	ctx := context.Background()

	first, err := s.store.MarkUsed(ctx, "jti-short", time.Second)
	s.Require().NoError(err)
	s.True(first)

	time.Sleep(1500 * time.Millisecond)

	again, err := s.store.MarkUsed(ctx, "jti-short", time.Second)
	s.Require().NoError(err)
	s.True(again)
}
