package app

import (
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-trade-client/cache"
	"github.com/saiset-co/sai-trade-client/coalesce"
	"github.com/saiset-co/sai-trade-client/types"
)

// PushInvalidator clears cache entries made stale by push messages. Patterns
// from every message in a burst are collected and applied once the channel
// has been quiet for the coalesce delay.
type PushInvalidator struct {
	logger    types.Logger
	cache     *cache.Manager
	rules     map[string][]*regexp.Regexp
	debouncer *coalesce.Debouncer[struct{}]
	pending   map[string]*regexp.Regexp
	mu        sync.Mutex
}

func NewPushInvalidator(logger types.Logger, cacheManager *cache.Manager, rules map[string][]string, delay time.Duration, opts ...coalesce.Option) (*PushInvalidator, error) {
	p := &PushInvalidator{
		logger:  logger,
		cache:   cacheManager,
		rules:   make(map[string][]*regexp.Regexp, len(rules)),
		pending: make(map[string]*regexp.Regexp),
	}

	for channel, patterns := range rules {
		for _, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, types.Errorf(types.ErrInvalidParameter, "channel %s pattern %q: %v", channel, pattern, err)
			}
			p.rules[channel] = append(p.rules[channel], re)
		}
	}

	p.debouncer = coalesce.NewDebouncer(delay, func(struct{}) { p.apply() }, opts...)

	return p, nil
}

// Channels lists the channels that carry invalidation rules.
func (p *PushInvalidator) Channels() []string {
	channels := make([]string, 0, len(p.rules))
	for channel := range p.rules {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}

// Handle is a types.ChannelHandler.
func (p *PushInvalidator) Handle(message *types.ChannelMessage) error {
	patterns := p.rules[message.Channel]
	if len(patterns) == 0 {
		return nil
	}

	p.mu.Lock()
	for _, re := range patterns {
		p.pending[re.String()] = re
	}
	p.mu.Unlock()

	p.debouncer.Trigger(struct{}{})
	return nil
}

// Flush applies pending invalidations immediately.
func (p *PushInvalidator) Flush() bool {
	return p.debouncer.Flush()
}

func (p *PushInvalidator) apply() {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[string]*regexp.Regexp)
	p.mu.Unlock()

	removed := 0
	for _, re := range pending {
		removed += p.cache.ClearByPattern(re)
	}

	p.logger.Debug("Push invalidation applied",
		zap.Int("patterns", len(pending)),
		zap.Int("removed", removed))
}
