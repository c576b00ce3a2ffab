package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuju-k/happy-wave/internal/models"
	"github.com/yuju-k/happy-wave/internal/repository"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

type fakeRepo struct {
	rooms    map[string]*models.ChatRoom
	profiles map[string]*models.UserProfile
	roomErr  error
	userErr  error
	reads    int
}

func (f *fakeRepo) GetRoom(_ context.Context, roomID string) (*models.ChatRoom, error) {
	f.reads++
	if f.roomErr != nil {
		return nil, f.roomErr
	}
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return room, nil
}

func (f *fakeRepo) GetUserProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	f.reads++
	if f.userErr != nil {
		return nil, f.userErr
	}
	profile, ok := f.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return profile, nil
}

type fakeSender struct {
	sent []*models.PushNotification
	err  error
}

func (f *fakeSender) SendPushNotification(_ context.Context, payload *models.PushNotification) (string, error) {
	f.sent = append(f.sent, payload)
	if f.err != nil {
		return "", f.err
	}
	return "projects/happy-wave/messages/1", nil
}

type fakeDedup struct {
	claimed  map[string]bool
	released []string
	err      error
}

func (f *fakeDedup) Claim(_ context.Context, roomID, messageID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	k := roomID + "/" + messageID
	if f.claimed[k] {
		return false, nil
	}
	f.claimed[k] = true
	return true, nil
}

func (f *fakeDedup) Release(_ context.Context, roomID, messageID string) error {
	k := roomID + "/" + messageID
	delete(f.claimed, k)
	f.released = append(f.released, k)
	return nil
}

func newScenario(status models.RoomStatus) (*fakeRepo, *fakeSender) {
	repo := &fakeRepo{
		rooms: map[string]*models.ChatRoom{
			"room-1": {Users: []string{"U1", "U2"}, Status: status},
		},
		profiles: map[string]*models.UserProfile{
			"U1": {FCMToken: "tok1"},
			"U2": {FCMToken: "tok2"},
		},
	}
	return repo, &fakeSender{}
}

var hi = models.ChatMessage{AuthorID: "U1", AuthorName: "Alice", Text: "hi"}

// ============================================================================
// TEST SUITE 1: SCENARIOS
// ============================================================================

func TestDispatch_ScenarioA_Sent(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	d := NewDispatcher(repo, sender, nil)

	res, err := d.Dispatch(context.Background(), "room-1", "m1", hi)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.True(t, res.Sent())
	assert.Equal(t, "U2", res.ReceiverID)
	assert.Equal(t, "projects/happy-wave/messages/1", res.DeliveryID)

	require.Len(t, sender.sent, 1)
	p := sender.sent[0]
	assert.Equal(t, "tok2", p.Token)
	assert.Equal(t, "Alice님이 메시지를 보냈습니다.", p.Title)
	assert.Equal(t, "hi", p.Body)
	assert.Equal(t, models.DefaultSound, p.Sound)
	assert.Equal(t, map[string]string{
		"roomId":       "room-1",
		"senderId":     "U1",
		"click_action": models.ClickActionFlutter,
	}, p.Data)
}

func TestDispatch_ScenarioB_Disconnected(t *testing.T) {
	repo, sender := newScenario(models.RoomDisconnected)
	d := NewDispatcher(repo, sender, nil)

	res, err := d.Dispatch(context.Background(), "room-1", "m1", hi)

	require.NoError(t, err)
	assert.Equal(t, Skipped(SkipRoomDisconnected), res)
	assert.Empty(t, sender.sent)
}

func TestDispatch_ScenarioC_NoToken(t *testing.T) {
	repo, sender := newScenario("")
	repo.profiles["U2"] = &models.UserProfile{}
	d := NewDispatcher(repo, sender, nil)

	res, err := d.Dispatch(context.Background(), "room-1", "m1", hi)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, SkipNoPushToken, res.Reason)
	assert.Equal(t, "U2", res.ReceiverID)
	assert.Empty(t, sender.sent)
}

func TestDispatch_ScenarioD_RoomMissing(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	d := NewDispatcher(repo, sender, nil)

	res, err := d.Dispatch(context.Background(), "room-404", "m1", hi)

	require.NoError(t, err)
	assert.Equal(t, Skipped(SkipRoomNotFound), res)
	assert.Empty(t, sender.sent)
}

// ============================================================================
// TEST SUITE 2: SKIP REASONS
// ============================================================================

func TestDispatch_SkipReasons(t *testing.T) {
	tests := []struct {
		name  string
		users []string
		msg   models.ChatMessage
		want  SkipReason
	}{
		{name: "no members", users: nil, msg: hi, want: SkipNoMembers},
		{name: "only sender", users: []string{"U1"}, msg: hi, want: SkipMalformedRoom},
		{name: "sender twice", users: []string{"U1", "U1"}, msg: hi, want: SkipMalformedRoom},
		{name: "empty member id", users: []string{"U1", ""}, msg: hi, want: SkipMalformedRoom},
		{name: "three members", users: []string{"U1", "U2", "U3"}, msg: hi, want: SkipMalformedRoom},
		{name: "author not a member", users: []string{"U2", "U3"}, msg: hi, want: SkipNoReceiver},
		{name: "receiver document missing", users: []string{"U1", "U9"}, msg: hi, want: SkipReceiverNotFound},
		{name: "missing author id", users: []string{"U1", "U2"}, msg: models.ChatMessage{AuthorName: "Alice", Text: "hi"}, want: SkipInvalidMessage},
		{name: "missing author name", users: []string{"U1", "U2"}, msg: models.ChatMessage{AuthorID: "U1", Text: "hi"}, want: SkipInvalidMessage},
		{name: "missing text", users: []string{"U1", "U2"}, msg: models.ChatMessage{AuthorID: "U1", AuthorName: "Alice"}, want: SkipInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, sender := newScenario(models.RoomConnected)
			repo.rooms["room-1"].Users = tt.users
			d := NewDispatcher(repo, sender, nil)

			res, err := d.Dispatch(context.Background(), "room-1", "m1", tt.msg)

			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, res.Outcome)
			assert.Equal(t, tt.want, res.Reason)
			assert.Empty(t, sender.sent)
		})
	}
}

func TestDispatch_InvalidMessageSkipsStoreReads(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	d := NewDispatcher(repo, sender, nil)

	res, err := d.Dispatch(context.Background(), "room-1", "m1", models.ChatMessage{AuthorID: "U1"})

	require.NoError(t, err)
	assert.Equal(t, SkipInvalidMessage, res.Reason)
	assert.Zero(t, repo.reads)
}

func TestDispatch_EmptyMemberNeverLookedUp(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	repo.rooms["room-1"].Users = []string{"U1", ""}
	repo.userErr = errors.New("invalid document id")
	d := NewDispatcher(repo, sender, nil)

	res, err := d.Dispatch(context.Background(), "room-1", "m1", hi)

	require.NoError(t, err)
	assert.Equal(t, Skipped(SkipMalformedRoom), res)
	assert.Equal(t, 1, repo.reads, "only the room is read")
	assert.Empty(t, sender.sent)
}

func TestDispatch_EmptyRoomID(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	d := NewDispatcher(repo, sender, nil)

	res, err := d.Dispatch(context.Background(), "", "m1", hi)

	require.NoError(t, err)
	assert.Equal(t, SkipInvalidMessage, res.Reason)
	assert.Empty(t, sender.sent)
}

func TestDispatch_ReceiverIsFirstMember(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	d := NewDispatcher(repo, sender, nil)

	res, err := d.Dispatch(context.Background(), "room-1", "m1",
		models.ChatMessage{AuthorID: "U2", AuthorName: "Bob", Text: "yo"})

	require.NoError(t, err)
	assert.Equal(t, "U1", res.ReceiverID)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "tok1", sender.sent[0].Token)
	assert.Equal(t, "U2", sender.sent[0].Data["senderId"])
}

// ============================================================================
// TEST SUITE 3: FAILURES
// ============================================================================

func TestDispatch_DeliveryFailureIsNotEscalated(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	sender.err = errors.New("registration-token-not-registered")
	d := NewDispatcher(repo, sender, nil)

	res, err := d.Dispatch(context.Background(), "room-1", "m1", hi)

	require.NoError(t, err)
	assert.Equal(t, OutcomeDeliveryFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, sender.err)
	assert.Len(t, sender.sent, 1, "delivery must not be retried")
}

func TestDispatch_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("unavailable")

	repo, sender := newScenario(models.RoomConnected)
	repo.roomErr = boom
	_, err := NewDispatcher(repo, sender, nil).Dispatch(context.Background(), "room-1", "m1", hi)
	assert.ErrorIs(t, err, boom)

	repo, sender = newScenario(models.RoomConnected)
	repo.userErr = boom
	_, err = NewDispatcher(repo, sender, nil).Dispatch(context.Background(), "room-1", "m1", hi)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, sender.sent)
}

// ============================================================================
// TEST SUITE 4: DUPLICATE SUPPRESSION
// ============================================================================

func TestDispatch_WithoutDedupResends(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	d := NewDispatcher(repo, sender, nil)

	for i := 0; i < 2; i++ {
		res, err := d.Dispatch(context.Background(), "room-1", "m1", hi)
		require.NoError(t, err)
		assert.True(t, res.Sent())
	}
	assert.Len(t, sender.sent, 2)
}

func TestDispatch_DedupSuppressesRedelivery(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	dedup := &fakeDedup{claimed: map[string]bool{}}
	d := NewDispatcher(repo, sender, dedup)

	first, err := d.Dispatch(context.Background(), "room-1", "m1", hi)
	require.NoError(t, err)
	assert.True(t, first.Sent())

	second, err := d.Dispatch(context.Background(), "room-1", "m1", hi)
	require.NoError(t, err)
	assert.Equal(t, SkipDuplicate, second.Reason)
	assert.Len(t, sender.sent, 1)
}

func TestDispatch_DedupReleasedOnDeliveryFailure(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	sender.err = errors.New("unavailable")
	dedup := &fakeDedup{claimed: map[string]bool{}}
	d := NewDispatcher(repo, sender, dedup)

	res, err := d.Dispatch(context.Background(), "room-1", "m1", hi)

	require.NoError(t, err)
	assert.Equal(t, OutcomeDeliveryFailed, res.Outcome)
	assert.Equal(t, []string{"room-1/m1"}, dedup.released)
	assert.Empty(t, dedup.claimed)
}

func TestDispatch_DedupIgnoredWithoutMessageID(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	dedup := &fakeDedup{claimed: map[string]bool{}}
	d := NewDispatcher(repo, sender, dedup)

	for i := 0; i < 2; i++ {
		res, err := d.Dispatch(context.Background(), "room-1", "", hi)
		require.NoError(t, err)
		assert.True(t, res.Sent())
	}
	assert.Empty(t, dedup.claimed)
}

func TestDispatch_DedupErrorPropagates(t *testing.T) {
	repo, sender := newScenario(models.RoomConnected)
	dedup := &fakeDedup{claimed: map[string]bool{}, err: errors.New("redis down")}
	d := NewDispatcher(repo, sender, dedup)

	_, err := d.Dispatch(context.Background(), "room-1", "m1", hi)

	assert.Error(t, err)
	assert.Empty(t, sender.sent)
}
