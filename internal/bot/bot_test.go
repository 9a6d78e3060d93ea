package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/internal/twitter"
	"github.com/xuegao65/agent-back/pkg/logger"
)

type fakeX struct {
	mu       sync.Mutex
	mentions []twitter.Tweet // newest first, like the API
	sinceIDs []string
	replies  []postedReply
	err      error
}

type postedReply struct {
	text, inReplyTo string
}

func (f *fakeX) Me(context.Context) (*twitter.User, error) {
	return &twitter.User{ID: "1", Username: "solagent"}, nil
}

func (f *fakeX) Mentions(_ context.Context, _, sinceID string, max int) ([]twitter.Tweet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceIDs = append(f.sinceIDs, sinceID)
	if f.err != nil {
		return nil, f.err
	}
	var out []twitter.Tweet
	for _, m := range f.mentions {
		if sinceID != "" && !newer(m.ID, sinceID) {
			continue
		}
		out = append(out, m)
		if len(out) == max {
			break
		}
	}
	return out, nil
}

func (f *fakeX) Reply(_ context.Context, text, inReplyTo string) (*twitter.Tweet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, postedReply{text: text, inReplyTo: inReplyTo})
	return &twitter.Tweet{ID: "r-" + inReplyTo, Text: text}, nil
}

func (f *fakeX) mention(id, text, author string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mentions = append([]twitter.Tweet{{ID: id, Text: text, AuthorID: author}}, f.mentions...)
}

func newer(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

type fakeStore struct {
	windows map[time.Time]*model.RateLimitWindow
	saved   []model.TweetReply
}

func newFakeStore() *fakeStore {
	return &fakeStore{windows: make(map[time.Time]*model.RateLimitWindow)}
}

func (f *fakeStore) RateLimitWindow(_ context.Context, month time.Time) (*model.RateLimitWindow, error) {
	w, ok := f.windows[month]
	if !ok {
		w = &model.RateLimitWindow{Month: month}
		var latest time.Time
		for m, prev := range f.windows {
			if m.Before(month) && m.After(latest) && prev.LastMentionID != nil {
				latest, w.LastMentionID = m, prev.LastMentionID
			}
		}
		f.windows[month] = w
	}
	cp := *w
	return &cp, nil
}

func (f *fakeStore) IncrementRateLimits(ctx context.Context, month time.Time, posts, reads int) error {
	_, _ = f.RateLimitWindow(ctx, month)
	f.windows[month].PostCount += posts
	f.windows[month].ReadCount += reads
	return nil
}

func (f *fakeStore) AdvanceMentionCursor(_ context.Context, month time.Time, id string) error {
	w := f.windows[month]
	if w.LastMentionID == nil || newer(id, *w.LastMentionID) {
		w.LastMentionID = &id
	}
	return nil
}

func (f *fakeStore) SaveTweetReply(_ context.Context, r *model.TweetReply) error {
	f.saved = append(f.saved, *r)
	return nil
}

type fakeGenerator struct {
	response string
	err      error
	userIDs  []string
}

func (f *fakeGenerator) Generate(_ context.Context, userID, _ string, onFragment func(string) error) (string, error) {
	f.userIDs = append(f.userIDs, userID)
	if f.err != nil {
		return "", f.err
	}
	_ = onFragment(f.response)
	return f.response, nil
}

type fakeEvents struct {
	events []*model.AgentEvent
}

func (f *fakeEvents) PublishEvent(_ context.Context, e *model.AgentEvent) error {
	f.events = append(f.events, e)
	return nil
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestBot(t *testing.T, x *fakeX, gen *fakeGenerator, store *fakeStore, events *fakeEvents) *Bot {
	t.Helper()
	b, err := New(context.Background(), x, gen, store, events, Config{}, logger.NewNop())
	require.NoError(t, err)
	b.now = func() time.Time { return testNow }
	return b
}

func TestCheckMentions_ColdStartThenReply(t *testing.T) {
	x := &fakeX{}
	x.mention("100", "@solagent old one", "7")
	x.mention("101", "@solagent older two", "8")
	gen := &fakeGenerator{response: "gm 🚀"}
	store := newFakeStore()
	events := &fakeEvents{}
	b := newTestBot(t, x, gen, store, events)
	ctx := context.Background()

	require.NoError(t, b.CheckMentions(ctx))
	assert.Empty(t, x.replies, "cold start must not reply")
	month := model.MonthStart(testNow)
	assert.Equal(t, "101", store.windows[month].Cursor())
	assert.Equal(t, 5, store.windows[month].ReadCount)

	x.mention("102", "@solagent swap 1 SOL to USDC", "9")
	require.NoError(t, b.CheckMentions(ctx))

	require.Len(t, x.replies, 1)
	assert.Equal(t, postedReply{text: "gm 🚀", inReplyTo: "102"}, x.replies[0])
	assert.Equal(t, "102", store.windows[month].Cursor())
	assert.Equal(t, 1, store.windows[month].PostCount)
	assert.Equal(t, 10, store.windows[month].ReadCount)
	assert.Equal(t, []string{"", "101"}, x.sinceIDs)
	assert.Equal(t, []string{"102"}, gen.userIDs)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "102", store.saved[0].MentionID)
	assert.Equal(t, "r-102", store.saved[0].ResponseID)

	require.Len(t, events.events, 1)
	assert.Equal(t, model.EventBotReplied, events.events[0].Type)
	assert.Equal(t, "102", events.events[0].Metadata["mention_id"])
}

func TestCheckMentions_StoredCursorRepliesImmediately(t *testing.T) {
	x := &fakeX{}
	x.mention("100", "seen", "7")
	x.mention("101", "@solagent first", "7")
	x.mention("102", "@solagent second", "8")
	store := newFakeStore()
	cursor := "100"
	month := model.MonthStart(testNow)
	store.windows[month] = &model.RateLimitWindow{Month: month, LastMentionID: &cursor}
	b := newTestBot(t, x, &fakeGenerator{response: "ok"}, store, &fakeEvents{})

	require.NoError(t, b.CheckMentions(context.Background()))

	require.Len(t, x.replies, 2)
	assert.Equal(t, "101", x.replies[0].inReplyTo, "oldest first")
	assert.Equal(t, "102", x.replies[1].inReplyTo)
	assert.Equal(t, "102", store.windows[month].Cursor())
}

func TestCheckMentions_MonthRolloverMidPoll(t *testing.T) {
	x := &fakeX{}
	x.mention("100", "seen", "7")
	x.mention("101", "@solagent one", "7")
	x.mention("102", "@solagent two", "8")
	store := newFakeStore()
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	cursor := "100"
	store.windows[feb] = &model.RateLimitWindow{Month: feb, LastMentionID: &cursor}

	b := newTestBot(t, x, &fakeGenerator{response: "gm"}, store, &fakeEvents{})
	clock := []time.Time{
		time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	b.now = func() time.Time {
		now := clock[0]
		if len(clock) > 1 {
			clock = clock[1:]
		}
		return now
	}

	require.NoError(t, b.CheckMentions(context.Background()))
	require.NoError(t, b.CheckMentions(context.Background()))

	require.Len(t, x.replies, 2, "each mention is answered once")
	assert.Equal(t, []string{"100", "102"}, x.sinceIDs)
	assert.Equal(t, 2, store.windows[feb].PostCount)
	mar := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, store.windows[mar].PostCount)
	assert.Equal(t, "102", store.windows[mar].Cursor())
}

func TestCheckMentions_ReadLimit(t *testing.T) {
	x := &fakeX{}
	store := newFakeStore()
	month := model.MonthStart(testNow)
	store.windows[month] = &model.RateLimitWindow{Month: month, ReadCount: 9900}
	b := newTestBot(t, x, &fakeGenerator{}, store, &fakeEvents{})

	require.NoError(t, b.CheckMentions(context.Background()))
	assert.Empty(t, x.sinceIDs, "no read once the monthly ceiling is reached")
	assert.Equal(t, 9900, store.windows[month].ReadCount)
}

func TestCheckMentions_FetchErrorKeepsColdStart(t *testing.T) {
	x := &fakeX{err: errors.New("429")}
	store := newFakeStore()
	b := newTestBot(t, x, &fakeGenerator{response: "hi"}, store, &fakeEvents{})

	require.Error(t, b.CheckMentions(context.Background()))

	x.err = nil
	x.mention("200", "@solagent hi", "7")
	require.NoError(t, b.CheckMentions(context.Background()))
	assert.Empty(t, x.replies)
}

func TestProcessMention_Skips(t *testing.T) {
	cases := map[string]struct {
		tweet    twitter.Tweet
		response string
		posts    int
	}{
		"reply to reply": {
			tweet: twitter.Tweet{ID: "5", Text: "hi", AuthorID: "7", ReferencedTweets: []twitter.ReferencedTweet{{Type: "replied_to", ID: "4"}}},
		},
		"own post":      {tweet: twitter.Tweet{ID: "5", Text: "hi", AuthorID: "1"}},
		"not addressed": {tweet: twitter.Tweet{ID: "5", Text: "hi", AuthorID: "7"}, response: "F"},
		"post limit":    {tweet: twitter.Tweet{ID: "5", Text: "hi", AuthorID: "7"}, response: "hello", posts: 2900},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			x := &fakeX{}
			store := newFakeStore()
			month := model.MonthStart(testNow)
			store.windows[month] = &model.RateLimitWindow{Month: month, PostCount: tc.posts}
			b := newTestBot(t, x, &fakeGenerator{response: tc.response}, store, &fakeEvents{})

			require.NoError(t, b.ProcessMention(context.Background(), tc.tweet))
			assert.Empty(t, x.replies)
			assert.Empty(t, store.saved)
		})
	}
}

func TestProcessMention_Truncates(t *testing.T) {
	x := &fakeX{}
	long := strings.Repeat("é", 300)
	b := newTestBot(t, x, &fakeGenerator{response: long}, newFakeStore(), &fakeEvents{})

	require.NoError(t, b.ProcessMention(context.Background(), twitter.Tweet{ID: "5", Text: "hi", AuthorID: "7"}))
	require.Len(t, x.replies, 1)
	assert.Equal(t, 280, len([]rune(x.replies[0].text)))
}

func TestProcessMention_GenerateError(t *testing.T) {
	x := &fakeX{}
	b := newTestBot(t, x, &fakeGenerator{err: errors.New("llm down")}, newFakeStore(), &fakeEvents{})

	err := b.ProcessMention(context.Background(), twitter.Tweet{ID: "5", Text: "hi", AuthorID: "7"})
	require.Error(t, err)
	assert.Empty(t, x.replies)
}

func TestRun_StopsOnCancel(t *testing.T) {
	x := &fakeX{}
	b := newTestBot(t, x, &fakeGenerator{}, newFakeStore(), &fakeEvents{})
	b.cfg.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	assert.GreaterOrEqual(t, len(x.sinceIDs), 2)
}
