package usecase

import (
	"context"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	users "github.com/dannybszn/doris-referral/internal/repository/port"
)

// ConversationView is a conversation with its participants resolved.
type ConversationView struct {
	Conversation chat.Conversation
	Participants []chat.User
}

// MessageView is a page of messages plus the senders referenced in it.
type MessageView struct {
	MessagePage
	Senders map[string]chat.User
}

// resolveUsers loads every id in one directory call. Ids the directory no
// longer knows come back as bare entries so responses stay complete.
func resolveUsers(ctx context.Context, dir users.UserDirectory, ids []string) (map[string]chat.User, error) {
	found, err := dir.FindByIDs(ctx, ids)
	if err != nil {
		return nil, persistErr(err)
	}
	if found == nil {
		found = make(map[string]chat.User, len(ids))
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			found[id] = chat.User{ID: id}
		}
	}
	return found, nil
}

func conversationViews(ctx context.Context, dir users.UserDirectory, convs ...chat.Conversation) ([]ConversationView, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, c := range convs {
		for _, p := range c.Participants {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				ids = append(ids, p)
			}
		}
	}
	byID, err := resolveUsers(ctx, dir, ids)
	if err != nil {
		return nil, err
	}
	views := make([]ConversationView, len(convs))
	for i, c := range convs {
		ps := make([]chat.User, len(c.Participants))
		for j, p := range c.Participants {
			ps[j] = byID[p]
		}
		views[i] = ConversationView{Conversation: c, Participants: ps}
	}
	return views, nil
}
