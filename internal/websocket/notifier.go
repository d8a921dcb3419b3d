package websocket

import (
	"github.com/clashsync/internal/domain"
)

// Publisher routes a typed payload to a topic
type Publisher interface {
	Publish(topic, messageType string, data any)
}

// HubNotifier fans domain changes out to hub topics
type HubNotifier struct {
	pub Publisher
}

// NewHubNotifier creates a notifier publishing through pub
func NewHubNotifier(pub Publisher) *HubNotifier {
	return &HubNotifier{pub: pub}
}

// NotifyThread sends the thread summary to the thread and to both
// participants so their inbox lists refresh.
func (n *HubNotifier) NotifyThread(thread *domain.Thread) {
	n.pub.Publish(ThreadTopic(thread.ID), MessageTypeThreadUpdate, thread)
	for _, id := range thread.ParticipantIDs {
		n.pub.Publish(UserTopic(id), MessageTypeThreadUpdate, thread)
	}
}

func (n *HubNotifier) NotifyMessage(msg *domain.Message) {
	n.pub.Publish(ThreadTopic(msg.ThreadID), MessageTypeMessage, msg)
}

func (n *HubNotifier) NotifyTyping(threadID string, typing []domain.TypingIndicator) {
	if typing == nil {
		typing = []domain.TypingIndicator{}
	}
	n.pub.Publish(ThreadTopic(threadID), MessageTypeTyping, TypingUpdate{ThreadID: threadID, Typing: typing})
}

// NotifyBattle publishes to the shared battles feed and to each creator
func (n *HubNotifier) NotifyBattle(battle *domain.Battle) {
	n.pub.Publish(TopicBattles, MessageTypeBattleUpdate, battle)
	n.pub.Publish(UserTopic(battle.CreatorAID), MessageTypeBattleUpdate, battle)
	if battle.CreatorBID != "" && battle.CreatorBID != battle.CreatorAID {
		n.pub.Publish(UserTopic(battle.CreatorBID), MessageTypeBattleUpdate, battle)
	}
}

func (n *HubNotifier) NotifyChatMessage(msg *domain.ChatMessage) {
	n.pub.Publish(ChannelTopic(msg.ChannelID), MessageTypeChatMessage, msg)
}

func (n *HubNotifier) NotifyLeaderboard(entries []domain.LeaderboardEntry) {
	n.pub.Publish(TopicLeaderboard, MessageTypeLeaderboardUpdate, LeaderboardUpdate{Entries: entries})
}

func (n *HubNotifier) NotifyUser(user *domain.User) {
	n.pub.Publish(UserTopic(user.ID), MessageTypeUserUpdate, user)
}
