package community

import (
	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

// Group is a community group. MemberCount always equals the group's
// entries in the member set.
type Group struct {
	Creator     chain.AccountID
	Name        string
	Description string
	AvatarHash  *string
	MemberCount uint32
	IsPublic    bool
	CreatedAt   chain.Time
	Deposit     uint64
}

type createGroupArgs struct {
	Name        string  `mapstructure:"name"`
	Description string  `mapstructure:"description"`
	IsPublic    bool    `mapstructure:"is_public"`
	AvatarHash  *string `mapstructure:"avatar_hash,omitempty"`
}

type groupIDArgs struct {
	GroupID uint64 `mapstructure:"group_id"`
}

// GroupUpdate carries the optional fields of update_group.
type GroupUpdate struct {
	GroupID     uint64  `mapstructure:"group_id"`
	Name        *string `mapstructure:"name,omitempty"`
	Description *string `mapstructure:"description,omitempty"`
	AvatarHash  *string `mapstructure:"avatar_hash,omitempty"`
	IsPublic    *bool   `mapstructure:"is_public,omitempty"`
}

func (m *Module) applyCreateGroup(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a createGroupArgs
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	id, err := m.CreateGroup(ctx, a.Name, a.Description, a.IsPublic, a.AvatarHash)
	if err != nil {
		return nil, err
	}
	return ir.Obj(ir.O("group_id", ir.Uint(id))), nil
}

func (m *Module) applyJoinGroup(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a groupIDArgs
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	return ir.Object{}, m.JoinGroup(ctx, a.GroupID)
}

func (m *Module) applyLeaveGroup(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a groupIDArgs
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	return ir.Object{}, m.LeaveGroup(ctx, a.GroupID)
}

func (m *Module) applyUpdateGroup(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a GroupUpdate
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	return ir.Object{}, m.UpdateGroup(ctx, a)
}

// CreateGroup reserves the group deposit and creates a group whose sole
// member and admin is the caller. is_public is recorded but joining is open
// to everyone either way.
func (m *Module) CreateGroup(ctx *chain.Ctx, name, description string, isPublic bool, avatarHash *string) (uint64, error) {
	if err := m.checkGroupText(&name, &description); err != nil {
		return 0, err
	}
	if err := m.ledger.Reserve(ctx.Caller, m.params.GroupDeposit); err != nil {
		return 0, err
	}
	id, err := m.nextGroupID.Allocate()
	if err != nil {
		return 0, chain.Reject(Name, chain.CodeIDExhausted, "%v", err)
	}

	m.groups.Insert(id, Group{
		Creator:     ctx.Caller,
		Name:        name,
		Description: description,
		AvatarHash:  cloneString(avatarHash),
		IsPublic:    isPublic,
		CreatedAt:   ctx.Time,
		Deposit:     m.params.GroupDeposit,
	})
	m.setMember(id, ctx.Caller, true)
	m.admins.Add(kv.P(id, ctx.Caller))

	ctx.Emit("GroupCreated",
		ir.O("group_id", ir.Uint(id)),
		ir.O("creator", chain.Account(ctx.Caller)),
	)
	return id, nil
}

// JoinGroup adds the caller to a group with room.
func (m *Module) JoinGroup(ctx *chain.Ctx, groupID uint64) error {
	g, ok := m.groups.Get(groupID)
	if !ok {
		return chain.Reject(Name, chain.CodeGroupNotFound, "group %d", groupID)
	}
	if m.members.Contains(kv.P(groupID, ctx.Caller)) {
		return chain.Reject(Name, chain.CodeAlreadyGroupMember, "%s in group %d", ctx.Caller, groupID)
	}
	if g.MemberCount >= m.params.MaxGroupMembers {
		return chain.Reject(Name, chain.CodeGroupFull, "group %d has %d members", groupID, g.MemberCount)
	}

	m.setMember(groupID, ctx.Caller, true)

	ctx.Emit("GroupJoined",
		ir.O("group_id", ir.Uint(groupID)),
		ir.O("user", chain.Account(ctx.Caller)),
	)
	return nil
}

// LeaveGroup removes the caller's membership and admin flag. The last admin
// leaving leaves the group without admins.
func (m *Module) LeaveGroup(ctx *chain.Ctx, groupID uint64) error {
	if !m.groups.Contains(groupID) {
		return chain.Reject(Name, chain.CodeGroupNotFound, "group %d", groupID)
	}
	if !m.members.Contains(kv.P(groupID, ctx.Caller)) {
		return chain.Reject(Name, chain.CodeNotGroupMember, "%s in group %d", ctx.Caller, groupID)
	}

	m.setMember(groupID, ctx.Caller, false)
	m.admins.Remove(kv.P(groupID, ctx.Caller))

	ctx.Emit("GroupLeft",
		ir.O("group_id", ir.Uint(groupID)),
		ir.O("user", chain.Account(ctx.Caller)),
	)
	return nil
}

// UpdateGroup changes the provided fields of a group. Only group admins may
// update.
func (m *Module) UpdateGroup(ctx *chain.Ctx, u GroupUpdate) error {
	g, ok := m.groups.Get(u.GroupID)
	if !ok {
		return chain.Reject(Name, chain.CodeGroupNotFound, "group %d", u.GroupID)
	}
	if !m.admins.Contains(kv.P(u.GroupID, ctx.Caller)) {
		return chain.Reject(Name, chain.CodeNotGroupAdmin, "%s in group %d", ctx.Caller, u.GroupID)
	}
	if err := m.checkGroupText(u.Name, u.Description); err != nil {
		return err
	}

	if u.Name != nil {
		g.Name = *u.Name
	}
	if u.Description != nil {
		g.Description = *u.Description
	}
	if u.AvatarHash != nil {
		g.AvatarHash = cloneString(u.AvatarHash)
	}
	if u.IsPublic != nil {
		g.IsPublic = *u.IsPublic
	}
	m.groups.Insert(u.GroupID, g)

	ctx.Emit("GroupUpdated",
		ir.O("group_id", ir.Uint(u.GroupID)),
		ir.O("updater", chain.Account(ctx.Caller)),
	)
	return nil
}

func (m *Module) checkGroupText(name, description *string) error {
	if name != nil && uint64(len(*name)) > uint64(m.params.MaxGroupNameLength) {
		return chain.Reject(Name, chain.CodeGroupNameTooLong, "%d bytes exceeds %d", len(*name), m.params.MaxGroupNameLength)
	}
	if description != nil && uint64(len(*description)) > uint64(m.params.MaxGroupDescriptionLength) {
		return chain.Reject(Name, chain.CodeGroupDescriptionTooLong, "%d bytes exceeds %d", len(*description), m.params.MaxGroupDescriptionLength)
	}
	return nil
}

// setMember is the only place the member set and member count change.
func (m *Module) setMember(groupID uint64, account chain.AccountID, member bool) {
	g, _ := m.groups.Get(groupID)
	key := kv.P(groupID, account)
	if member {
		if m.members.Add(key) {
			g.MemberCount = saturatingInc(g.MemberCount)
		}
	} else if m.members.Remove(key) {
		g.MemberCount = saturatingDec(g.MemberCount)
	}
	m.groups.Insert(groupID, g)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
