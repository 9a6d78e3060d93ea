package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/xuegao65/agent-back/internal/apperror"
	"github.com/xuegao65/agent-back/internal/model"
)

// openTestStore connects to TEST_DATABASE_URL and empties every table.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.db.Exec("TRUNCATE tokens, conversations, messages, rate_limits, tweets RESTART IDENTITY").Error)
	return s
}

func intPtr(i int) *int { return &i }
func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string { return &s }

func TestUpsertTokens_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tokens := []model.Token{
		{Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Name: "USD Coin", Symbol: "USDC", Decimals: intPtr(6), FullData: datatypes.JSON(`{"symbol":"USDC"}`)},
		{Address: "So11111111111111111111111111111111111111112", Name: "Wrapped SOL", Symbol: "SOL", Decimals: intPtr(9), FullData: datatypes.JSON(`{"symbol":"SOL"}`)},
	}

	n, err := s.UpsertTokens(ctx, tokens)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.UpsertTokens(ctx, tokens)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	tokens[0].Name = "USDC"
	n, err = s.UpsertTokens(ctx, tokens)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := s.CountTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestFindToken_TieBreak(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertTokens(ctx, []model.Token{
		{Address: "AAAbogus1", Symbol: "BONK", Decimals: intPtr(5), DailyVolume: floatPtr(10)},
		{Address: "BBBreal22", Symbol: "Bonk", Decimals: intPtr(5), DailyVolume: floatPtr(5000)},
		{Address: "CCCnovol3", Symbol: "bonk", Decimals: intPtr(5)},
		{Address: "bonk", Symbol: "XYZ", Decimals: intPtr(2)},
	})
	require.NoError(t, err)

	tok, err := s.FindToken(ctx, "BONK")
	require.NoError(t, err)
	assert.Equal(t, "BBBreal22", tok.Address)

	// An exact address match beats any symbol match.
	tok, err = s.FindToken(ctx, "bonk")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", tok.Symbol)

	_, err = s.FindToken(ctx, "ZZZ")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestConversationLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv := &model.Conversation{
		UserID:         "user-1",
		ConversationID: uuid.NewString(),
		Status:         model.ConversationActive,
		LastMessage:    "gm",
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	got, err := s.FindActiveConversation(ctx, "user-1", conv.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "gm", got.LastMessage)

	_, err = s.FindActiveConversation(ctx, "user-2", conv.ConversationID)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))

	changed, err := s.CompleteConversation(ctx, "user-1", conv.ConversationID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.CompleteConversation(ctx, "user-1", conv.ConversationID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.FindActiveConversation(ctx, "user-1", conv.ConversationID)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestMessages_Paging(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendMessage(ctx, &model.Message{
			UserID:    "user-1",
			Message:   "q",
			Response:  "a",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.AppendMessage(ctx, &model.Message{UserID: "other", Timestamp: base}))

	total, err := s.CountMessages(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	page, err := s.ListMessages(ctx, "user-1", 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Timestamp.After(page[1].Timestamp))

	page, err = s.ListMessages(ctx, "user-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, page[0].Timestamp.Equal(base))
}

func TestRateLimitWindow_InheritsCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sep := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	oct := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	w, err := s.RateLimitWindow(ctx, sep)
	require.NoError(t, err)
	assert.Equal(t, "", w.Cursor())

	require.NoError(t, s.AdvanceMentionCursor(ctx, sep, "1850000000000000009"))
	require.NoError(t, s.IncrementRateLimits(ctx, sep, 1, 5))

	w, err = s.RateLimitWindow(ctx, oct)
	require.NoError(t, err)
	assert.Equal(t, "1850000000000000009", w.Cursor())
	assert.Equal(t, 0, w.ReadCount)

	w, err = s.RateLimitWindow(ctx, sep)
	require.NoError(t, err)
	assert.Equal(t, 1, w.PostCount)
	assert.Equal(t, 5, w.ReadCount)
}

func TestAdvanceMentionCursor_ForwardOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	month := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.RateLimitWindow(ctx, month)
	require.NoError(t, err)

	require.NoError(t, s.AdvanceMentionCursor(ctx, month, "1850000000000000100"))
	require.NoError(t, s.AdvanceMentionCursor(ctx, month, "999999999999999999"))
	require.NoError(t, s.AdvanceMentionCursor(ctx, month, "1850000000000000099"))

	w, err := s.RateLimitWindow(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, "1850000000000000100", w.Cursor())

	require.NoError(t, s.AdvanceMentionCursor(ctx, month, "1850000000000000101"))
	w, err = s.RateLimitWindow(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, strPtr("1850000000000000101"), w.LastMentionID)
}

func TestSaveTweetReply(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	reply := &model.TweetReply{MentionID: "1", MentionText: "@bot gm", ResponseID: "2", ResponseText: "gm ser"}
	require.NoError(t, s.SaveTweetReply(ctx, reply))
	assert.NotZero(t, reply.ID)
	assert.False(t, reply.CreatedAt.IsZero())
}
