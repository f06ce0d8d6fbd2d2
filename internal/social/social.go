// Package social implements the token-social module: posts backed by a
// deposit, likes that reward authors, profiles and the follow graph.
package social

import (
	"cmp"
	"math"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

// Name is the social module's routing key.
const Name = "social"

// Default economic parameters.
const (
	DefaultPostDeposit   = 10
	DefaultPostReward    = 5
	DefaultLikeReward    = 1
	DefaultMaxPostLength = 256
)

// Sentinel rejections for errors.Is.
var (
	ErrPostNotFound      = chain.Sentinel(Name, chain.CodePostNotFound)
	ErrPostTooLong       = chain.Sentinel(Name, chain.CodePostTooLong)
	ErrAlreadyLiked      = chain.Sentinel(Name, chain.CodeAlreadyLiked)
	ErrNotLiked          = chain.Sentinel(Name, chain.CodeNotLiked)
	ErrCannotLikeOwnPost = chain.Sentinel(Name, chain.CodeCannotLikeOwnPost)
	ErrCannotFollowSelf  = chain.Sentinel(Name, chain.CodeCannotFollowSelf)
	ErrAlreadyFollowing  = chain.Sentinel(Name, chain.CodeAlreadyFollowing)
	ErrNotFollowing      = chain.Sentinel(Name, chain.CodeNotFollowing)
)

// Ledger is the slice of the escrow ledger the module needs.
type Ledger interface {
	Reserve(account chain.AccountID, amount uint64) error
	MintAndCredit(account chain.AccountID, amount uint64)
}

// Params configures deposits, rewards and bounds.
type Params struct {
	PostDeposit   uint64
	PostReward    uint64
	LikeReward    uint64
	MaxPostLength uint32
}

// DefaultParams returns the stock economic parameters.
func DefaultParams() Params {
	return Params{
		PostDeposit:   DefaultPostDeposit,
		PostReward:    DefaultPostReward,
		LikeReward:    DefaultLikeReward,
		MaxPostLength: DefaultMaxPostLength,
	}
}

// Post is a social post. Likes always equals the post's entries in the
// like set; the deposit stays reserved forever.
type Post struct {
	Author      chain.AccountID
	ContentHash string
	Timestamp   chain.Time
	Likes       uint32
	Deposit     uint64
}

type likeKey = kv.Pair[uint64, chain.AccountID]

// followKey is (follower, followed).
type followKey = kv.Pair[chain.AccountID, chain.AccountID]

// Module is the token-social module.
type Module struct {
	params    Params
	ledger    Ledger
	nextID    *kv.Counter
	posts     *kv.Map[uint64, Post]
	likes     *kv.Set[likeKey]
	following *kv.Set[followKey]
	profiles  *kv.Map[chain.AccountID, string]
}

// New creates the module with its containers attached to j.
func New(j *kv.Journal, ledger Ledger, params Params) *Module {
	return &Module{
		params:    params,
		ledger:    ledger,
		nextID:    kv.NewCounter(j, 0, math.MaxUint64),
		posts:     kv.NewMap[uint64, Post](j, cmp.Compare[uint64]).Digested(postEntry),
		likes:     kv.NewSet(j, kv.ComparePairs[uint64, chain.AccountID]).Digested(likeEntry),
		following: kv.NewSet(j, kv.ComparePairs[chain.AccountID, chain.AccountID]).Digested(followEntry),
		profiles:  kv.NewMap[chain.AccountID, string](j, cmp.Compare[chain.AccountID]).Digested(profileEntry),
	}
}

// Name implements chain.Module.
func (m *Module) Name() string { return Name }

type contentArgs struct {
	ContentHash string `mapstructure:"content_hash"`
}

type postIDArgs struct {
	PostID uint64 `mapstructure:"post_id"`
}

type profileArgs struct {
	ProfileHash string `mapstructure:"profile_hash"`
}

type targetArgs struct {
	Target chain.AccountID `mapstructure:"target"`
}

// Apply implements chain.Module.
func (m *Module) Apply(ctx *chain.Ctx, action string, args ir.Object) (ir.Object, error) {
	switch action {
	case "create_post":
		var a contentArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		id, err := m.CreatePost(ctx, a.ContentHash)
		if err != nil {
			return nil, err
		}
		return ir.Obj(ir.O("post_id", ir.Uint(id))), nil

	case "like_post", "unlike_post":
		var a postIDArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		if action == "like_post" {
			return ir.Object{}, m.LikePost(ctx, a.PostID)
		}
		return ir.Object{}, m.UnlikePost(ctx, a.PostID)

	case "update_profile":
		var a profileArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		m.UpdateProfile(ctx, a.ProfileHash)
		return ir.Object{}, nil

	case "follow_user", "unfollow_user":
		var a targetArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		if action == "follow_user" {
			return ir.Object{}, m.Follow(ctx, a.Target)
		}
		return ir.Object{}, m.Unfollow(ctx, a.Target)

	default:
		return nil, &chain.UnknownError{Module: Name, Kind: "action", Name: action}
	}
}

// CreatePost reserves the post deposit, stores the post and mints the
// creation reward to the author.
func (m *Module) CreatePost(ctx *chain.Ctx, contentHash string) (uint64, error) {
	if uint64(len(contentHash)) > uint64(m.params.MaxPostLength) {
		return 0, chain.Reject(Name, chain.CodePostTooLong, "%d bytes exceeds %d", len(contentHash), m.params.MaxPostLength)
	}
	if err := m.ledger.Reserve(ctx.Caller, m.params.PostDeposit); err != nil {
		return 0, err
	}
	id, err := m.nextID.Allocate()
	if err != nil {
		return 0, chain.Reject(Name, chain.CodeIDExhausted, "%v", err)
	}

	m.posts.Insert(id, Post{
		Author:      ctx.Caller,
		ContentHash: contentHash,
		Timestamp:   ctx.Time,
		Deposit:     m.params.PostDeposit,
	})
	m.ledger.MintAndCredit(ctx.Caller, m.params.PostReward)

	ctx.Emit("PostCreated",
		ir.O("post_id", ir.Uint(id)),
		ir.O("author", chain.Account(ctx.Caller)),
	)
	m.emitReward(ctx, ctx.Caller, m.params.PostReward)
	return id, nil
}

// LikePost records the caller's like and rewards the author.
func (m *Module) LikePost(ctx *chain.Ctx, postID uint64) error {
	p, ok := m.posts.Get(postID)
	if !ok {
		return chain.Reject(Name, chain.CodePostNotFound, "post %d", postID)
	}
	if p.Author == ctx.Caller {
		return chain.Reject(Name, chain.CodeCannotLikeOwnPost, "post %d", postID)
	}
	key := kv.P(postID, ctx.Caller)
	if m.likes.Contains(key) {
		return chain.Reject(Name, chain.CodeAlreadyLiked, "%s on post %d", ctx.Caller, postID)
	}
	if p.Likes == math.MaxUint32 {
		return chain.Reject(Name, chain.CodeIDExhausted, "post %d like count exhausted", postID)
	}

	m.setLiked(postID, p, ctx.Caller, true)
	m.ledger.MintAndCredit(p.Author, m.params.LikeReward)

	ctx.Emit("PostLiked",
		ir.O("post_id", ir.Uint(postID)),
		ir.O("liker", chain.Account(ctx.Caller)),
		ir.O("author", chain.Account(p.Author)),
	)
	m.emitReward(ctx, p.Author, m.params.LikeReward)
	return nil
}

// UnlikePost removes the caller's like. Rewards already paid stay paid.
func (m *Module) UnlikePost(ctx *chain.Ctx, postID uint64) error {
	p, ok := m.posts.Get(postID)
	if !ok {
		return chain.Reject(Name, chain.CodePostNotFound, "post %d", postID)
	}
	if !m.likes.Contains(kv.P(postID, ctx.Caller)) {
		return chain.Reject(Name, chain.CodeNotLiked, "%s on post %d", ctx.Caller, postID)
	}

	m.setLiked(postID, p, ctx.Caller, false)

	ctx.Emit("PostUnliked",
		ir.O("post_id", ir.Uint(postID)),
		ir.O("unliker", chain.Account(ctx.Caller)),
		ir.O("author", chain.Account(p.Author)),
	)
	return nil
}

// setLiked is the only place the like set and the like counter change.
func (m *Module) setLiked(postID uint64, p Post, account chain.AccountID, liked bool) {
	key := kv.P(postID, account)
	if liked {
		if m.likes.Add(key) {
			p.Likes++
		}
	} else if m.likes.Remove(key) && p.Likes > 0 {
		p.Likes--
	}
	m.posts.Insert(postID, p)
}

// UpdateProfile stores the caller's profile hash.
func (m *Module) UpdateProfile(ctx *chain.Ctx, profileHash string) {
	m.profiles.Insert(ctx.Caller, profileHash)
	ctx.Emit("ProfileUpdated", ir.O("account", chain.Account(ctx.Caller)))
}

// Follow adds caller -> target to the follow graph.
func (m *Module) Follow(ctx *chain.Ctx, target chain.AccountID) error {
	if target == ctx.Caller {
		return chain.Reject(Name, chain.CodeCannotFollowSelf, "%s", target)
	}
	if !m.following.Add(kv.P(ctx.Caller, target)) {
		return chain.Reject(Name, chain.CodeAlreadyFollowing, "%s -> %s", ctx.Caller, target)
	}
	ctx.Emit("UserFollowed",
		ir.O("follower", chain.Account(ctx.Caller)),
		ir.O("followed", chain.Account(target)),
	)
	return nil
}

// Unfollow removes caller -> target from the follow graph.
func (m *Module) Unfollow(ctx *chain.Ctx, target chain.AccountID) error {
	if !m.following.Remove(kv.P(ctx.Caller, target)) {
		return chain.Reject(Name, chain.CodeNotFollowing, "%s -> %s", ctx.Caller, target)
	}
	ctx.Emit("UserUnfollowed",
		ir.O("unfollower", chain.Account(ctx.Caller)),
		ir.O("unfollowed", chain.Account(target)),
	)
	return nil
}

func (m *Module) emitReward(ctx *chain.Ctx, recipient chain.AccountID, amount uint64) {
	ctx.Emit("RewardDistributed",
		ir.O("recipient", chain.Account(recipient)),
		ir.O("amount", ir.Uint(amount)),
	)
}
