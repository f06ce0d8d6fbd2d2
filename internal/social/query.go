package social

import (
	"strconv"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

type likeQueryArgs struct {
	PostID  uint64          `mapstructure:"post_id"`
	Account chain.AccountID `mapstructure:"account"`
}

type followQueryArgs struct {
	Follower chain.AccountID `mapstructure:"follower"`
	Followed chain.AccountID `mapstructure:"followed"`
}

type accountArgs struct {
	Account chain.AccountID `mapstructure:"account"`
}

// Query implements chain.Module.
func (m *Module) Query(_ chain.Time, query string, args ir.Object) (ir.Value, error) {
	switch query {
	case "get_post":
		var a postIDArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		p, ok := m.posts.Get(a.PostID)
		if !ok {
			return ir.Null{}, nil
		}
		return postValue(a.PostID, p), nil

	case "has_liked":
		var a likeQueryArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		return ir.Bool(m.likes.Contains(kv.P(a.PostID, a.Account))), nil

	case "is_following":
		var a followQueryArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		return ir.Bool(m.following.Contains(kv.P(a.Follower, a.Followed))), nil

	case "get_profile":
		var a accountArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		h, ok := m.profiles.Get(a.Account)
		if !ok {
			return ir.Null{}, nil
		}
		return ir.String(h), nil

	case "followers", "following":
		var a accountArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		if query == "followers" {
			return accounts(m.Followers(a.Account)), nil
		}
		return accounts(m.Following(a.Account)), nil

	default:
		return nil, &chain.UnknownError{Module: Name, Kind: "query", Name: query}
	}
}

// Post returns a post by id.
func (m *Module) Post(id uint64) (Post, bool) {
	return m.posts.Get(id)
}

// HasLiked reports whether account likes the post.
func (m *Module) HasLiked(postID uint64, account chain.AccountID) bool {
	return m.likes.Contains(kv.P(postID, account))
}

// Followers lists who follows account, in order.
func (m *Module) Followers(account chain.AccountID) []chain.AccountID {
	return kv.Firsts(m.following, account)
}

// Following lists whom account follows, in order.
func (m *Module) Following(account chain.AccountID) []chain.AccountID {
	return kv.Seconds(m.following, account)
}

// Snapshot implements chain.Module.
func (m *Module) Snapshot() ir.Object {
	posts := ir.Object{}
	for _, id := range m.posts.Keys() {
		p, _ := m.posts.Get(id)
		posts[strconv.FormatUint(id, 10)] = postValue(id, p)
	}

	likes := make(ir.Array, 0, m.likes.Len())
	for _, k := range m.likes.Keys() {
		likes = append(likes, ir.Array{ir.Uint(k.First), chain.Account(k.Second)})
	}

	following := make(ir.Array, 0, m.following.Len())
	for _, k := range m.following.Keys() {
		following = append(following, ir.Array{chain.Account(k.First), chain.Account(k.Second)})
	}

	profiles := ir.Object{}
	for _, account := range m.profiles.Keys() {
		h, _ := m.profiles.Get(account)
		profiles[string(account)] = ir.String(h)
	}

	return ir.Obj(
		ir.O("next_post_id", ir.Uint(m.nextID.Peek())),
		ir.O("posts", posts),
		ir.O("likes", likes),
		ir.O("following", following),
		ir.O("profiles", profiles),
	)
}

// Digest implements chain.Module.
func (m *Module) Digest() ir.Object {
	return ir.Obj(
		ir.O("next_post_id", ir.Uint(m.nextID.Peek())),
		ir.O("posts", kv.Summary(m.posts)),
		ir.O("likes", kv.Summary(m.likes)),
		ir.O("following", kv.Summary(m.following)),
		ir.O("profiles", kv.Summary(m.profiles)),
	)
}

func postEntry(id uint64, p Post) ir.Value { return postValue(id, p) }

func likeEntry(k likeKey) ir.Value {
	return ir.Array{ir.Uint(k.First), chain.Account(k.Second)}
}

func followEntry(k followKey) ir.Value {
	return ir.Array{chain.Account(k.First), chain.Account(k.Second)}
}

func profileEntry(account chain.AccountID, hash string) ir.Value {
	return ir.Array{chain.Account(account), ir.String(hash)}
}

func postValue(id uint64, p Post) ir.Object {
	return ir.Obj(
		ir.O("post_id", ir.Uint(id)),
		ir.O("author", chain.Account(p.Author)),
		ir.O("content_hash", ir.String(p.ContentHash)),
		ir.O("timestamp", ir.Uint(p.Timestamp)),
		ir.O("likes", ir.Int(p.Likes)),
		ir.O("deposit", ir.Uint(p.Deposit)),
	)
}

func accounts(as []chain.AccountID) ir.Array {
	arr := make(ir.Array, len(as))
	for i, a := range as {
		arr[i] = chain.Account(a)
	}
	return arr
}
