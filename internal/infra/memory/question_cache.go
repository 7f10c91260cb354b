package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"interquest/internal/domain"
)

// QuestionCache memoizes per-round question lists with TTL to avoid repeated
// store hits during a round's waiting room churn.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[int]cachedRound
}

type cachedRound struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[int]cachedRound),
	}
}

func (c *QuestionCache) LoadQuestions(ctx context.Context, round int) ([]domain.Question, error) {
	now := c.clock()

	// Cached entries are immutable once stored, so every caller gets a copy
	// rather than a view of the shared backing array.
	c.mu.RLock()
	if entry, ok := c.cache[round]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return append([]domain.Question(nil), entry.questions...), nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(strconv.Itoa(round), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[round]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.LoadQuestions(ctx, round)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[round] = cachedRound{
			questions: append([]domain.Question(nil), questions...),
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), result.([]domain.Question)...), nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
