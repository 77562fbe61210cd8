package main

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/config"
	"github.com/sells-group/source-matcher/internal/matcher"
	"github.com/sells-group/source-matcher/internal/metrics"
	"github.com/sells-group/source-matcher/internal/resilience"
	"github.com/sells-group/source-matcher/pkg/formatter"
	"github.com/sells-group/source-matcher/pkg/objectcache"
	"github.com/sells-group/source-matcher/pkg/ruleengine"
	"github.com/sells-group/source-matcher/pkg/tbainquiry"
	"github.com/sells-group/source-matcher/pkg/tbaupdate"
)

// engineEnv holds the engine and the resources behind its clients.
type engineEnv struct {
	Engine   *matcher.Engine
	Breakers *resilience.Breakers
	redis    *redis.Client
}

// Close releases resources held by the environment.
func (ee *engineEnv) Close() {
	if ee.redis != nil {
		if err := ee.redis.Close(); err != nil {
			zap.L().Warn("close redis client", zap.Error(err))
		}
	}
}

// newBreakers creates the per-service breakers, exporting every transition
// as a metric.
func newBreakers(c config.BreakerConfig) *resilience.Breakers {
	bc := resilience.BreakerConfigFrom(c.FailureThreshold, c.ResetTimeoutSecs)
	bc.OnTransition = func(service string, from, to resilience.State) {
		metrics.SetBreakerState(service, int(to))
		zap.L().Warn("circuit breaker transition",
			zap.String("service", service),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return resilience.NewBreakers(bc,
		objectcache.ServiceName,
		tbainquiry.ServiceName,
		ruleengine.ServiceName,
		tbaupdate.ServiceName,
		formatter.ServiceName,
	)
}

// initEngine builds the remote clients and the engine from c. Callers
// should defer env.Close().
func initEngine(c *config.Config) *engineEnv {
	breakers := newBreakers(c.Breaker)
	timeout := time.Duration(c.HTTP.TimeoutSecs) * time.Second
	rps := c.HTTP.RateLimit

	env := &engineEnv{Breakers: breakers}

	var cache objectcache.Client
	switch c.Cache.Driver {
	case "redis":
		env.redis = redis.NewClient(&redis.Options{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
		})
		cache = objectcache.NewRedis(env.redis,
			objectcache.WithRedisBreaker(breakers.For(objectcache.ServiceName)),
		)
		zap.L().Info("object cache using redis", zap.String("addr", c.Cache.Redis.Addr))
	default:
		cache = objectcache.NewClient(
			objectcache.WithBaseURL(c.Cache.FetchURL),
			objectcache.WithStoreURL(c.Cache.StoreURL),
			objectcache.WithBreaker(breakers.For(objectcache.ServiceName)),
			objectcache.WithLimiter(rps),
			objectcache.WithTimeout(timeout),
		)
	}

	inquiry := tbainquiry.NewClient(
		tbainquiry.WithBaseURL(c.Inquiry.URL),
		tbainquiry.WithBreaker(breakers.For(tbainquiry.ServiceName)),
		tbainquiry.WithLimiter(rps),
		tbainquiry.WithTimeout(timeout),
	)
	rules := ruleengine.NewClient(
		ruleengine.WithBaseURL(c.Rules.URL),
		ruleengine.WithBreaker(breakers.For(ruleengine.ServiceName)),
		ruleengine.WithLimiter(rps),
		ruleengine.WithTimeout(timeout),
	)
	update := tbaupdate.NewClient(
		tbaupdate.WithBaseURL(c.Update.URL),
		tbaupdate.WithBreaker(breakers.For(tbaupdate.ServiceName)),
		tbaupdate.WithLimiter(rps),
		tbaupdate.WithTimeout(timeout),
	)
	fmtClient := formatter.NewClient(
		formatter.WithBaseURL(c.Formatter.URL),
		formatter.WithBreaker(breakers.For(formatter.ServiceName)),
		formatter.WithLimiter(rps),
		formatter.WithTimeout(timeout),
	)

	opts := []matcher.Option{
		matcher.WithTBAURL(c.Inquiry.TBAURL),
		matcher.WithParallelFetch(c.Engine.ParallelFetch),
	}
	if c.InternalIDs.Path != "" {
		opts = append(opts, matcher.WithInternalIDFile(c.InternalIDs.Path))
	} else {
		zap.L().Warn("internal_ids.path not set, internal id inquiries will fail")
	}

	env.Engine = matcher.New(cache, inquiry, rules, update, fmtClient, opts...)
	return env
}
