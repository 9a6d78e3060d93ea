// Package bot answers X mentions through the agent within monthly API quotas.
package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/internal/agent"
	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/internal/twitter"
	"github.com/xuegao65/agent-back/pkg/logger"
	"github.com/xuegao65/agent-back/pkg/metrics"
)

const (
	// mentionBatch is both the page size requested and the read cost charged
	// per poll.
	mentionBatch  = 5
	maxReplyRunes = 280
)

// X is the subset of the X API the bot uses.
type X interface {
	Me(ctx context.Context) (*twitter.User, error)
	Mentions(ctx context.Context, userID, sinceID string, max int) ([]twitter.Tweet, error)
	Reply(ctx context.Context, text, inReplyTo string) (*twitter.Tweet, error)
}

// Generator produces the agent's full response to a message.
type Generator interface {
	Generate(ctx context.Context, userID, message string, onFragment func(string) error) (string, error)
}

// Store persists quota windows and posted replies.
type Store interface {
	RateLimitWindow(ctx context.Context, month time.Time) (*model.RateLimitWindow, error)
	IncrementRateLimits(ctx context.Context, month time.Time, posts, reads int) error
	AdvanceMentionCursor(ctx context.Context, month time.Time, mentionID string) error
	SaveTweetReply(ctx context.Context, reply *model.TweetReply) error
}

// EventPublisher publishes lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.AgentEvent) error
}

// Config bounds the bot.
type Config struct {
	Interval time.Duration
	MaxReads int
	MaxPosts int
}

// Bot polls mentions and replies to the ones addressed to it.
type Bot struct {
	x         X
	generator Generator
	store     Store
	events    EventPublisher
	cfg       Config
	logger    *logger.Logger
	now       func() time.Time

	selfID string

	mu          sync.Mutex
	initialized bool
}

// New looks up the authenticated account and returns a bot acting as it.
func New(ctx context.Context, x X, generator Generator, store Store, events EventPublisher, cfg Config, log *logger.Logger) (*Bot, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 300 * time.Second
	}
	if cfg.MaxReads <= 0 {
		cfg.MaxReads = 9900
	}
	if cfg.MaxPosts <= 0 {
		cfg.MaxPosts = 2900
	}

	me, err := x.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify X credentials: %w", err)
	}

	return &Bot{
		x:         x,
		generator: generator,
		store:     store,
		events:    events,
		cfg:       cfg,
		logger:    log.Named("bot").With(zap.String("account", me.Username)),
		now:       time.Now,
		selfID:    me.ID,
	}, nil
}

// Run checks mentions now and then every interval until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("mention bot started", zap.Duration("interval", b.cfg.Interval))

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := b.CheckMentions(ctx); err != nil {
			b.logger.Error("mention check failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			b.logger.Info("mention bot stopped")
			return
		case <-ticker.C:
		}
	}
}

// CheckMentions runs one poll. The first poll without a stored cursor only
// records where the mention stream currently ends.
func (b *Bot) CheckMentions(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	month := model.MonthStart(b.now())
	window, err := b.store.RateLimitWindow(ctx, month)
	if err != nil {
		return fmt.Errorf("load rate limits: %w", err)
	}
	if window.ReadCount >= b.cfg.MaxReads {
		b.logger.Warn("monthly read limit reached, skipping mention check", zap.Int("read_count", window.ReadCount))
		metrics.BotMentionsTotal.WithLabelValues("read_limited").Inc()
		return nil
	}

	cursor := window.Cursor()
	catalogueOnly := !b.initialized && cursor == ""

	mentions, err := b.x.Mentions(ctx, b.selfID, cursor, mentionBatch)
	if err != nil {
		return fmt.Errorf("fetch mentions: %w", err)
	}
	if err := b.store.IncrementRateLimits(ctx, month, 0, mentionBatch); err != nil {
		b.logger.Error("failed to record mention read", zap.Error(err))
	}

	sortOldestFirst(mentions)
	for _, m := range mentions {
		if catalogueOnly {
			metrics.BotMentionsTotal.WithLabelValues("catalogued").Inc()
		} else if err := b.processMention(ctx, month, m); err != nil {
			b.logger.Error("failed to process mention", zap.String("mention_id", m.ID), zap.Error(err))
			metrics.BotMentionsTotal.WithLabelValues("error").Inc()
		}
		if err := b.store.AdvanceMentionCursor(ctx, month, m.ID); err != nil {
			b.logger.Error("failed to advance mention cursor", zap.String("mention_id", m.ID), zap.Error(err))
		}
	}

	if !b.initialized {
		b.initialized = true
		b.logger.Info("mention bot initialized, now responding to new mentions",
			zap.Int("catalogued", len(mentions)),
			zap.Bool("cold_start", catalogueOnly),
		)
	}
	return nil
}

// ProcessMention replies to one mention unless it is a reply, the bot's own
// post, not addressed to the bot, or the post quota is spent.
func (b *Bot) ProcessMention(ctx context.Context, m twitter.Tweet) error {
	return b.processMention(ctx, model.MonthStart(b.now()), m)
}

// processMention charges the reply to month, the window the poll that found
// the mention read from.
func (b *Bot) processMention(ctx context.Context, month time.Time, m twitter.Tweet) error {
	log := b.logger.With(zap.String("mention_id", m.ID), zap.String("author_id", m.AuthorID))

	if m.IsReply() {
		metrics.BotMentionsTotal.WithLabelValues("skipped_reply").Inc()
		return nil
	}
	if m.AuthorID == b.selfID {
		metrics.BotMentionsTotal.WithLabelValues("skipped_self").Inc()
		return nil
	}

	log.Info("processing mention")
	response, err := b.generator.Generate(ctx, m.ID, m.Text, func(string) error { return nil })
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}
	if strings.TrimSpace(response) == agent.NotAddressed {
		log.Info("mention not addressed to bot")
		metrics.BotMentionsTotal.WithLabelValues("not_addressed").Inc()
		return nil
	}

	window, err := b.store.RateLimitWindow(ctx, month)
	if err != nil {
		return fmt.Errorf("load rate limits: %w", err)
	}
	if window.PostCount >= b.cfg.MaxPosts {
		log.Warn("monthly post limit reached, skipping reply", zap.Int("post_count", window.PostCount))
		metrics.BotMentionsTotal.WithLabelValues("post_limited").Inc()
		return nil
	}

	text := truncate(response, maxReplyRunes)
	reply, err := b.x.Reply(ctx, text, m.ID)
	if err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	metrics.BotMentionsTotal.WithLabelValues("replied").Inc()
	log.Info("replied to mention", zap.String("reply_id", reply.ID))

	if err := b.store.IncrementRateLimits(ctx, month, 1, 0); err != nil {
		log.Error("failed to record post", zap.Error(err))
	}
	if err := b.store.SaveTweetReply(ctx, &model.TweetReply{
		MentionID:    m.ID,
		MentionText:  m.Text,
		ResponseID:   reply.ID,
		ResponseText: reply.Text,
	}); err != nil {
		log.Error("failed to save reply", zap.Error(err))
	}

	if err := b.events.PublishEvent(ctx, &model.AgentEvent{
		Type:   model.EventBotReplied,
		UserID: m.AuthorID,
		Metadata: map[string]string{
			"mention_id": m.ID,
			"reply_id":   reply.ID,
		},
	}); err != nil {
		log.Warn("failed to publish event", zap.Error(err))
	}
	return nil
}

// sortOldestFirst orders posts by id. Ids are decimal snowflakes, so a
// shorter id is older.
func sortOldestFirst(tweets []twitter.Tweet) {
	sort.SliceStable(tweets, func(i, j int) bool {
		a, b := tweets[i].ID, tweets[j].ID
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
