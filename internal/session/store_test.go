package session

import (
	"NiralaChat/internal/model"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func open(s *Store, id string) {
	s.Update(Insert(model.NewSession(id, model.Counterpart{ID: "u-" + id, Name: id}, time.Unix(0, 0))))
}

func msg(id, conv, sender string) model.Message {
	return model.Message{ID: id, ConversationID: conv, SenderID: sender, Content: "hi " + id}
}

func TestInsert_KeepsOpenOrderAndIgnoresDuplicates(t *testing.T) {
	s := NewStore()
	open(s, "c1")
	open(s, "c2")
	open(s, "c1")

	require.Equal(t, []string{"c1", "c2"}, s.IDs())
	got, ok := s.Get("c1")
	require.True(t, ok)
	require.True(t, got.Loading)
	require.Equal(t, model.WindowMaximized, got.WindowState)
}

func TestRemove_DropsOnlyNamedSessions(t *testing.T) {
	s := NewStore()
	open(s, "c1")
	open(s, "c2")
	open(s, "c3")

	s.Update(Remove("c1", "c3", "missing"))
	require.Equal(t, []string{"c2"}, s.IDs())

	s.Update(Clear())
	require.Empty(t, s.Snapshot())
}

func TestMergeHistory_PutsHistoryFirstAndKeepsLiveMessages(t *testing.T) {
	s := NewStore()
	open(s, "c1")
	s.Update(AppendMessage(msg("live", "c1", "u-c1"), "me"))
	s.Update(AppendMessage(msg("h2", "c1", "u-c1"), "me"))

	s.Update(MergeHistory("c1", []model.Message{msg("h1", "c1", "me"), msg("h2", "c1", "u-c1")}))

	got, _ := s.Get("c1")
	require.False(t, got.Loading)
	ids := make([]string, 0, len(got.Messages))
	for _, m := range got.Messages {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{"h1", "h2", "live"}, ids)
}

func TestAppendMessage_DedupesAndCountsUnreadWhenMinimized(t *testing.T) {
	s := NewStore()
	open(s, "c1")
	s.Update(SetWindowState("c1", model.WindowMinimized))

	s.Update(AppendMessage(msg("m1", "c1", "u-c1"), "me"))
	s.Update(AppendMessage(msg("m1", "c1", "u-c1"), "me"))
	s.Update(AppendMessage(msg("m2", "c1", "me"), "me"))

	got, _ := s.Get("c1")
	require.Len(t, got.Messages, 2)
	require.Equal(t, 1, got.UnreadCount)
	require.Equal(t, 1, s.TotalUnread())

	s.Update(SetWindowState("c1", model.WindowMaximized))
	got, _ = s.Get("c1")
	require.Zero(t, got.UnreadCount)
}

func TestAppendMessage_MaximizedDoesNotCountUnread(t *testing.T) {
	s := NewStore()
	open(s, "c1")
	s.Update(AppendMessage(msg("m1", "c1", "u-c1"), "me"))

	got, _ := s.Get("c1")
	require.Zero(t, got.UnreadCount)
}

func TestAppendMessage_UnknownConversationIsIgnored(t *testing.T) {
	s := NewStore()
	open(s, "c1")
	s.Update(AppendMessage(msg("m1", "other", "u"), "me"))

	got, _ := s.Get("c1")
	require.Empty(t, got.Messages)
}

func TestApplyReadReceipt_UnionsReader(t *testing.T) {
	s := NewStore()
	open(s, "c1")
	s.Update(MergeHistory("c1", []model.Message{msg("m1", "c1", "me"), msg("m2", "c1", "me")}))

	s.Update(ApplyReadReceipt("c1", []string{"m1"}, "u-c1"))
	s.Update(ApplyReadReceipt("c1", []string{"m1"}, "u-c1"))

	got, _ := s.Get("c1")
	require.Equal(t, []string{"u-c1"}, got.Messages[0].ReadBy)
	require.Empty(t, got.Messages[1].ReadBy)
}

func TestReactions_AddAndRemove(t *testing.T) {
	s := NewStore()
	open(s, "c1")
	s.Update(MergeHistory("c1", []model.Message{msg("m1", "c1", "me")}))

	s.Update(ApplyReactionAdded("c1", "m1", "👍", "u-c1"))
	s.Update(ApplyReactionAdded("c1", "m1", "👍", "u-c1"))
	got, _ := s.Get("c1")
	require.Equal(t, []string{"u-c1"}, got.Messages[0].Reactions["👍"])

	s.Update(ApplyReactionRemoved("c1", "m1", "👍", "u-c1"))
	got, _ = s.Get("c1")
	require.NotContains(t, got.Messages[0].Reactions, "👍")
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	s := NewStore()
	open(s, "c1")
	s.Update(MergeHistory("c1", []model.Message{msg("m1", "c1", "me")}))

	snap := s.Snapshot()
	snap[0].Messages[0].Content = "changed"
	snap[0].UnreadCount = 9

	got, _ := s.Get("c1")
	require.Equal(t, "hi m1", got.Messages[0].Content)
	require.Zero(t, got.UnreadCount)
}

func TestSubscribe_ReceivesCommittedListUntilCancelled(t *testing.T) {
	s := NewStore()
	var seen [][]string
	cancel := s.Subscribe(func(list []model.Session) {
		seen = append(seen, ids(list))
	})

	open(s, "c1")
	cancel()
	open(s, "c2")

	require.Equal(t, [][]string{{"c1"}}, seen)
}

func TestUpdateIf_ChecksUnderLock(t *testing.T) {
	s := NewStore()
	open(s, "c1")

	applied := s.UpdateIf(func(prev []model.Session) bool { return indexOf(prev, "c2") >= 0 }, SetLoading("c1", false))
	require.False(t, applied)

	applied = s.UpdateIf(func(prev []model.Session) bool { return indexOf(prev, "c1") >= 0 }, SetLoading("c1", false))
	require.True(t, applied)
	got, _ := s.Get("c1")
	require.False(t, got.Loading)
}

func TestUpdate_ConcurrentEventsDoNotLoseEachOther(t *testing.T) {
	s := NewStore()
	open(s, "c1")
	open(s, "c2")
	s.Update(SetWindowState("c1", model.WindowMinimized))
	s.Update(SetWindowState("c2", model.WindowMinimized))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, conv := range []string{"c1", "c2"} {
			wg.Add(1)
			go func(conv string, i int) {
				defer wg.Done()
				s.Update(AppendMessage(msg(conv+"-"+time.Duration(i).String(), conv, "other"), "me"))
			}(conv, i)
		}
	}
	wg.Wait()

	c1, _ := s.Get("c1")
	c2, _ := s.Get("c2")
	require.Equal(t, 50, c1.UnreadCount)
	require.Equal(t, 50, c2.UnreadCount)
	require.Equal(t, 100, s.TotalUnread())
}

func TestSubscribe_LastDeliveredMatchesStoreUnderConcurrentUpdates(t *testing.T) {
	for run := 0; run < 100; run++ {
		s := NewStore()
		var (
			mu   sync.Mutex
			last []string
		)
		s.Subscribe(func(list []model.Session) {
			mu.Lock()
			last = ids(list)
			mu.Unlock()
		})

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				open(s, "c"+time.Duration(g).String())
			}(g)
		}
		wg.Wait()

		mu.Lock()
		require.Equal(t, ids(s.Snapshot()), last, "run %d", run)
		mu.Unlock()
	}
}
