package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chatrelay/internal/cache"
	"chatrelay/internal/domain"
	"chatrelay/internal/repository"
)

// Directory serves user and conversation lookups through the cache. Reads are
// read-through; writes invalidate every derived key computed from the changed
// record.
type Directory struct {
	users repository.UserRepository
	convs repository.ConversationRepository
	cache *cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewDirectory(users repository.UserRepository, convs repository.ConversationRepository, c *cache.Cache, ttl time.Duration, log *zap.Logger) *Directory {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Directory{users: users, convs: convs, cache: c, ttl: ttl, log: log}
}

func (d *Directory) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	key := cache.Key("user", "id", userID)

	var u domain.User
	if d.cache.GetCached(ctx, key, &u) {
		return &u, nil
	}

	user, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.cache.SetCache(ctx, key, user, d.ttl)
	return user, nil
}

func (d *Directory) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	key := cache.Key("user", "username", username)

	var u domain.User
	if d.cache.GetCached(ctx, key, &u) {
		return &u, nil
	}

	user, err := d.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	d.cache.SetCache(ctx, key, user, d.ttl)
	return user, nil
}

// GetUserResponse resolves the public profile for a user, caching the rendered
// read-model separately from the source record.
func (d *Directory) GetUserResponse(ctx context.Context, userID string) (*domain.UserResponse, error) {
	key := cache.Key("user", "response", userID)

	var resp domain.UserResponse
	if d.cache.GetCached(ctx, key, &resp) {
		return &resp, nil
	}

	user, err := d.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	r := user.Response()
	d.cache.SetCache(ctx, key, r, d.ttl)
	return &r, nil
}

func (d *Directory) GetAllUsers(ctx context.Context) ([]*domain.User, error) {
	key := cache.Key("users", "all")

	var cached []*domain.User
	if d.cache.GetCached(ctx, key, &cached) {
		return cached, nil
	}

	users, err := d.users.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	d.cache.SetCache(ctx, key, users, d.ttl)
	return users, nil
}

// UpdateUserStatus writes through to the repository and invalidates every key
// derived from the user record: the id- and username-keyed source entries, the
// rendered response, the users:all aggregate, and rendered conversation
// responses that embed user profiles.
func (d *Directory) UpdateUserStatus(ctx context.Context, userID string, status domain.UserStatus) (*domain.User, error) {
	user, err := d.users.UpdateStatus(ctx, userID, status)
	if err != nil {
		return nil, err
	}

	d.cache.Invalidate(ctx, cache.Key("user", "id", userID))
	d.cache.Invalidate(ctx, cache.Key("user", "username", user.Username))
	d.cache.Invalidate(ctx, cache.Key("user", "response", userID))
	d.cache.Invalidate(ctx, cache.Key("users", "all"))
	d.cache.Invalidate(ctx, cache.Key("conversation", "response", "*"))

	d.log.Info("user status updated",
		zap.String("user_id", userID),
		zap.String("status", string(status)),
	)
	return user, nil
}

func (d *Directory) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	key := cache.Key("conversation", "id", conversationID)

	var c domain.Conversation
	if d.cache.GetCached(ctx, key, &c) {
		return &c, nil
	}

	conv, err := d.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	d.cache.SetCache(ctx, key, conv, d.ttl)
	return conv, nil
}

// GetConversationResponse assembles the public view of a conversation with the
// creator and member profiles resolved.
func (d *Directory) GetConversationResponse(ctx context.Context, conversationID string) (*domain.ConversationResponse, error) {
	key := cache.Key("conversation", "response", conversationID)

	var resp domain.ConversationResponse
	if d.cache.GetCached(ctx, key, &resp) {
		return &resp, nil
	}

	conv, err := d.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	creator, err := d.GetUserResponse(ctx, conv.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("resolve creator: %w", err)
	}

	members := make([]domain.UserResponse, 0, len(conv.MemberIDs))
	for _, id := range conv.MemberIDs {
		m, err := d.GetUserResponse(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve member %s: %w", id, err)
		}
		members = append(members, *m)
	}

	r := domain.ConversationResponse{
		ID:        conv.ID,
		Name:      conv.Name,
		Creator:   *creator,
		Members:   members,
		CreatedAt: conv.CreatedAt,
		Type:      conv.Type,
	}
	d.cache.SetCache(ctx, key, r, d.ttl)
	return &r, nil
}

// HasAccess reports whether userID is the conversation's creator or a member.
// Pure predicate: a missing conversation surfaces as ErrNotFound, a
// non-member as false, never as silently empty results.
func (d *Directory) HasAccess(ctx context.Context, userID, conversationID string) (bool, error) {
	conv, err := d.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv.HasMember(userID), nil
}
