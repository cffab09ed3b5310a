package leclark

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway overrides the handful of session methods role management
// touches. Anything else panics via the embedded nil interface.
type stubGateway struct {
	DiscordSessionHandler
	roles   []*discordgo.Role
	members map[string]*discordgo.Member
	botID   string
}

func (s *stubGateway) BotUserID() string {
	return s.botID
}

func (s *stubGateway) GuildRoles(
	_ string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	return s.roles, nil
}

func (s *stubGateway) GuildMember(
	_ string,
	userID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	member, ok := s.members[userID]
	if !ok {
		return nil, errors.New("unknown member")
	}
	return member, nil
}

func newRoleTestDiscord(
	roles []*discordgo.Role,
	members map[string]*discordgo.Member,
) *Discord {
	return &Discord{
		session: &stubGateway{
			roles:   roles,
			members: members,
			botID:   "bot",
		},
	}
}

func TestBotCanManageRole(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "role-bot", Position: 5},
		{ID: "role-staff", Position: 3},
		{ID: "role-low", Position: 1},
	}
	members := map[string]*discordgo.Member{
		"bot":    {Roles: []string{"role-bot"}},
		"target": {Roles: []string{"role-low"}},
	}
	d := newRoleTestDiscord(roles, members)

	ok, err := d.botCanManageRole("guild-1", "role-staff", "target")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBotCannotManageRoleAboveItself(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "role-bot", Position: 3},
		{ID: "role-admin", Position: 5},
	}
	members := map[string]*discordgo.Member{
		"bot":    {Roles: []string{"role-bot"}},
		"target": {Roles: nil},
	}
	d := newRoleTestDiscord(roles, members)

	ok, err := d.botCanManageRole("guild-1", "role-admin", "target")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBotCannotManageHigherMember(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "role-bot", Position: 3},
		{ID: "role-staff", Position: 1},
		{ID: "role-admin", Position: 5},
	}
	members := map[string]*discordgo.Member{
		"bot":    {Roles: []string{"role-bot"}},
		"target": {Roles: []string{"role-admin"}},
	}
	d := newRoleTestDiscord(roles, members)

	ok, err := d.botCanManageRole("guild-1", "role-staff", "target")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBotCanManageRoleUnknownRole(t *testing.T) {
	d := newRoleTestDiscord(nil, map[string]*discordgo.Member{
		"bot": {Roles: nil},
	})

	_, err := d.botCanManageRole("guild-1", "no-such-role", "target")
	assert.Error(t, err)
}

func TestTopRolePosition(t *testing.T) {
	positions := map[string]int{"a": 2, "b": 7, "c": 4}

	member := &discordgo.Member{Roles: []string{"a", "c", "unknown"}}
	assert.Equal(t, 4, topRolePosition(member, positions))

	member = &discordgo.Member{Roles: []string{"b"}}
	assert.Equal(t, 7, topRolePosition(member, positions))

	assert.Zero(t, topRolePosition(&discordgo.Member{}, positions))
}

func TestMemberHasAnyRole(t *testing.T) {
	member := &discordgo.Member{Roles: []string{"a", "b"}}
	assert.True(t, memberHasAnyRole(member, []string{"b"}))
	assert.False(t, memberHasAnyRole(member, []string{"c"}))
	assert.False(t, memberHasAnyRole(nil, []string{"a"}))
}

func TestInteractionUserID(t *testing.T) {
	guildInteraction := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "member-id"},
			},
		},
	}
	assert.Equal(t, "member-id", interactionUserID(guildInteraction))

	dmInteraction := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			User: &discordgo.User{ID: "dm-id"},
		},
	}
	assert.Equal(t, "dm-id", interactionUserID(dmInteraction))

	empty := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{},
	}
	assert.Empty(t, interactionUserID(empty))
}

func TestFirstAudioAttachment(t *testing.T) {
	audio := &discordgo.MessageAttachment{
		URL:         "https://cdn.example/track.mp3",
		ContentType: "audio/mpeg",
	}
	image := &discordgo.MessageAttachment{
		URL:         "https://cdn.example/cover.png",
		ContentType: "image/png",
	}

	assert.Equal(
		t,
		audio,
		firstAudioAttachment([]*discordgo.MessageAttachment{image, audio}),
	)
	assert.Nil(t, firstAudioAttachment([]*discordgo.MessageAttachment{image}))
	assert.Nil(t, firstAudioAttachment(nil))
}

// stubMessageSession records the channel and DM traffic the message
// handler produces.
type stubMessageSession struct {
	DiscordSessionHandler
	mu        sync.Mutex
	reactions []string
	sent      map[string][]string
	deleted   []string
	dmUsers   []string
	responses []string
}

func (s *stubMessageSession) MessageReactionAdd(
	channelID string,
	messageID string,
	emojiID string,
	_ ...discordgo.RequestOption,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reactions = append(s.reactions, channelID+"/"+messageID+"/"+emojiID)
	return nil
}

func (s *stubMessageSession) ChannelMessageSend(
	channelID string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = map[string][]string{}
	}
	s.sent[channelID] = append(s.sent[channelID], content)
	return &discordgo.Message{}, nil
}

func (s *stubMessageSession) ChannelMessageDelete(
	_ string,
	messageID string,
	_ ...discordgo.RequestOption,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, messageID)
	return nil
}

func (s *stubMessageSession) InteractionRespond(
	_ *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp.Data.Content)
	return nil
}

func (s *stubMessageSession) UserChannelCreate(
	recipientID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dmUsers = append(s.dmUsers, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

// newMessageTestBot wires a bot whose gateway session is a recording
// stub, with the given channel configured for submissions.
func newMessageTestBot(
	t testing.TB,
	guildID string,
	channelID string,
) (*LeClark, *stubMessageSession) {
	t.Helper()
	lc, _ := newTestBot(t)
	stub := &stubMessageSession{}
	lc.discord.session = stub

	_, err := GetGuildSettings(lc.db, guildID)
	require.NoError(t, err)
	_, err = lc.writeDB.UpdatesWhere(
		context.Background(),
		&GuildSettings{},
		map[string]any{"submission_channel_id": channelID},
		"guild_id = ?",
		guildID,
	)
	require.NoError(t, err)
	return lc, stub
}

func audioMessage(
	guildID string,
	channelID string,
	userID string,
	messageID string,
) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        messageID,
		GuildID:   guildID,
		ChannelID: channelID,
		Author:    &discordgo.User{ID: userID, Username: userID},
		Attachments: []*discordgo.MessageAttachment{
			{
				URL:         "https://cdn.example/" + messageID + ".mp3",
				ContentType: "audio/mpeg",
			},
		},
	}}
}

func TestMessageCreateIngestsAudioAttachment(t *testing.T) {
	ctx := context.Background()
	lc, stub := newMessageTestBot(t, "guild-1", "chan-sub")
	require.NoError(
		t, lc.queue.OpenSession(ctx, "guild-1", SubmissionCategoryRegular),
	)

	handler := lc.discord.handlerMessageCreate(ctx)
	handler(nil, audioMessage("guild-1", "chan-sub", "alice", "msg-1"))

	pending, err := lc.queue.Pending(
		ctx, "guild-1", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "https://cdn.example/msg-1.mp3", pending[0].TrackURL)

	assert.Equal(
		t,
		[]string{"chan-sub/msg-1/" + submissionReaction},
		stub.reactions,
	)
	require.Len(t, stub.sent["chan-sub"], 1)
	assert.Contains(t, stub.sent["chan-sub"][0], "position **#1**")

	// First-ever submission earns a front-of-queue DM
	assert.Equal(t, []string{"alice"}, stub.dmUsers)
	require.Len(t, stub.sent["dm-alice"], 1)
	assert.Contains(
		t, stub.sent["dm-alice"][0], "front of the queue",
	)

	// A second submission from the same user gets no DM
	handler(nil, audioMessage("guild-1", "chan-sub", "alice", "msg-2"))
	assert.Equal(t, []string{"alice"}, stub.dmUsers)
	assert.Len(t, stub.sent["chan-sub"], 2)
}

func TestMessageCreateBroadcastsNewSubmission(t *testing.T) {
	ctx := context.Background()
	lc, _ := newMessageTestBot(t, "guild-1", "chan-sub")
	require.NoError(
		t, lc.queue.OpenSession(ctx, "guild-1", SubmissionCategoryRegular),
	)

	srv := hubTestServer(t, lc.hub, "guild-1")
	conn := dialHub(t, srv)
	waitForSubscribers(t, lc.hub, "guild-1", 1)

	handler := lc.discord.handlerMessageCreate(ctx)
	handler(nil, audioMessage("guild-1", "chan-sub", "alice", "msg-1"))

	require.NoError(
		t, conn.SetReadDeadline(time.Now().Add(5*time.Second)),
	)
	var frame widgetNewSubmission
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "new_submission", frame.Type)
	assert.Equal(t, "alice", frame.Username)
}

func TestMessageCreateIgnoresLinkOnlyMessages(t *testing.T) {
	ctx := context.Background()
	lc, stub := newMessageTestBot(t, "guild-1", "chan-sub")
	require.NoError(
		t, lc.queue.OpenSession(ctx, "guild-1", SubmissionCategoryRegular),
	)

	handler := lc.discord.handlerMessageCreate(ctx)
	handler(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "msg-1",
		GuildID:   "guild-1",
		ChannelID: "chan-sub",
		Author:    &discordgo.User{ID: "alice", Username: "alice"},
		Content:   "https://soundcloud.com/artist/track",
	}})

	count, err := lc.queue.PendingLength(
		ctx, "guild-1", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Zero(t, count, "bare links are not submissions")
	assert.Empty(t, stub.reactions)
}

func TestMessageCreateIgnoredWhenSystemDisabled(t *testing.T) {
	ctx := context.Background()
	lc, stub := newMessageTestBot(t, "guild-1", "chan-sub")
	require.NoError(
		t, lc.queue.OpenSession(ctx, "guild-1", SubmissionCategoryRegular),
	)
	_, err := lc.writeDB.UpdatesWhere(
		ctx,
		&GuildSettings{},
		map[string]any{"submissions_enabled": false},
		"guild_id = ?",
		"guild-1",
	)
	require.NoError(t, err)

	handler := lc.discord.handlerMessageCreate(ctx)
	handler(nil, audioMessage("guild-1", "chan-sub", "alice", "msg-1"))

	count, err := lc.queue.PendingLength(
		ctx, "guild-1", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, stub.reactions)
	assert.Empty(t, stub.deleted)
	assert.Empty(t, stub.sent)
}

func componentInteraction(
	guildID string,
	customID string,
	roles ...string,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: guildID,
		Member: &discordgo.Member{
			User:  &discordgo.User{ID: "presser"},
			Roles: roles,
		},
		Data: discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

func grantModRole(t testing.TB, lc *LeClark, guildID string) {
	t.Helper()
	_, err := lc.writeDB.UpdatesWhere(
		context.Background(),
		&GuildSettings{},
		map[string]any{"mod_role_ids": "role-mod"},
		"guild_id = ?",
		guildID,
	)
	require.NoError(t, err)
}

func TestComponentRejectedWhenSystemDisabled(t *testing.T) {
	ctx := context.Background()
	lc, stub := newMessageTestBot(t, "guild-1", "chan-sub")
	grantModRole(t, lc, "guild-1")
	_, err := lc.writeDB.UpdatesWhere(
		ctx,
		&GuildSettings{},
		map[string]any{"submissions_enabled": false},
		"guild_id = ?",
		"guild-1",
	)
	require.NoError(t, err)

	lc.discord.handleComponent(
		ctx, componentInteraction("guild-1", panelButtonNext, "role-mod"),
	)

	require.Len(t, stub.responses, 1)
	assert.Contains(t, stub.responses[0], "disabled")
	reviewing, err := lc.queue.Reviewing(
		ctx, "guild-1", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Nil(t, reviewing, "no dequeue while the system is off")
}

func TestComponentStatsReportsAllTimeTotal(t *testing.T) {
	ctx := context.Background()
	lc, stub := newMessageTestBot(t, "guild-1", "chan-sub")
	grantModRole(t, lc, "guild-1")

	_, err := lc.queue.Ingest(
		ctx, "guild-1", "alice", "https://cdn.example/track.mp3",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	claimed, err := lc.queue.Dequeue(
		ctx, "guild-1", "reviewer", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	require.NoError(t, lc.queue.Complete(ctx, claimed.ID))
	_, err = lc.queue.CloseSession(
		ctx, "guild-1", SubmissionCategoryRegular,
	)
	require.NoError(t, err)

	lc.discord.handleComponent(
		ctx, componentInteraction("guild-1", panelButtonStats, "role-mod"),
	)

	require.Len(t, stub.responses, 1)
	assert.Contains(t, stub.responses[0], "**1**",
		"total survives the session close")
}

func TestComponentGiveawayEntrySkipsModGate(t *testing.T) {
	ctx := context.Background()
	lc, stub := newMessageTestBot(t, "guild-1", "chan-sub")

	giveaway, err := lc.giveaways.Start(
		ctx, "guild-1", "chan-1", "prize", time.Hour, false,
	)
	require.NoError(t, err)

	// No moderator role required to enter
	lc.discord.handleComponent(
		ctx, componentInteraction("guild-1", giveaway.EntryButtonID()),
	)
	require.Len(t, stub.responses, 1)
	assert.Contains(t, stub.responses[0], "You're in")

	lc.discord.handleComponent(
		ctx, componentInteraction("guild-1", giveaway.EntryButtonID()),
	)
	require.Len(t, stub.responses, 2)
	assert.Contains(t, stub.responses[1], "already entered")
}

func TestMessageCreateClosedSessionRemovesMessage(t *testing.T) {
	ctx := context.Background()
	lc, stub := newMessageTestBot(t, "guild-1", "chan-sub")

	handler := lc.discord.handlerMessageCreate(ctx)
	handler(nil, audioMessage("guild-1", "chan-sub", "alice", "msg-1"))

	count, err := lc.queue.PendingLength(
		ctx, "guild-1", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, []string{"msg-1"}, stub.deleted)
	require.Len(t, stub.sent["dm-alice"], 1)
	assert.Contains(t, stub.sent["dm-alice"][0], "closed")
}
