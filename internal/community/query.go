package community

import (
	"strconv"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

type membershipArgs struct {
	GroupID uint64          `mapstructure:"group_id"`
	Account chain.AccountID `mapstructure:"account"`
}

type accountArgs struct {
	Account chain.AccountID `mapstructure:"account"`
}

type reportIDArgs struct {
	ReportID uint64 `mapstructure:"report_id"`
}

type blockArgs struct {
	Blocker chain.AccountID `mapstructure:"blocker"`
	Blocked chain.AccountID `mapstructure:"blocked"`
}

// Query implements chain.Module.
func (m *Module) Query(_ chain.Time, query string, args ir.Object) (ir.Value, error) {
	switch query {
	case "get_group":
		var a groupIDArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		g, ok := m.groups.Get(a.GroupID)
		if !ok {
			return ir.Null{}, nil
		}
		return groupValue(a.GroupID, g), nil

	case "is_member", "is_admin":
		var a membershipArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		set := m.members
		if query == "is_admin" {
			set = m.admins
		}
		return ir.Bool(set.Contains(kv.P(a.GroupID, a.Account))), nil

	case "get_message":
		var a messageIDArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		msg, ok := m.messages.Get(a.MessageID)
		if !ok {
			return ir.Null{}, nil
		}
		return messageValue(a.MessageID, msg), nil

	case "inbox":
		var a accountArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		ids := m.Inbox(a.Account)
		arr := make(ir.Array, len(ids))
		for i, id := range ids {
			arr[i] = ir.Uint(id)
		}
		return arr, nil

	case "get_report":
		var a reportIDArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		r, ok := m.reports.Get(a.ReportID)
		if !ok {
			return ir.Null{}, nil
		}
		return reportValue(a.ReportID, r), nil

	case "get_reputation":
		var a accountArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		r, _ := m.Reputation(a.Account)
		return reputationValue(r), nil

	case "is_blocked":
		var a blockArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		return ir.Bool(m.blocked.Contains(kv.P(a.Blocker, a.Blocked))), nil

	default:
		return nil, &chain.UnknownError{Module: Name, Kind: "query", Name: query}
	}
}

// Group returns a group by id.
func (m *Module) Group(id uint64) (Group, bool) {
	return m.groups.Get(id)
}

// IsMember reports whether account belongs to the group.
func (m *Module) IsMember(groupID uint64, account chain.AccountID) bool {
	return m.members.Contains(kv.P(groupID, account))
}

// IsAdmin reports whether account administers the group.
func (m *Module) IsAdmin(groupID uint64, account chain.AccountID) bool {
	return m.admins.Contains(kv.P(groupID, account))
}

// Members lists a group's members in order.
func (m *Module) Members(groupID uint64) []chain.AccountID {
	return kv.Seconds(m.members, groupID)
}

// Message returns a message by id.
func (m *Module) Message(id uint64) (Message, bool) {
	return m.messages.Get(id)
}

// Report returns a report by id.
func (m *Module) Report(id uint64) (Report, bool) {
	return m.reports.Get(id)
}

// Snapshot implements chain.Module.
func (m *Module) Snapshot() ir.Object {
	groups := ir.Object{}
	for _, id := range m.groups.Keys() {
		g, _ := m.groups.Get(id)
		groups[strconv.FormatUint(id, 10)] = groupValue(id, g)
	}

	messages := ir.Object{}
	for _, id := range m.messages.Keys() {
		msg, _ := m.messages.Get(id)
		messages[strconv.FormatUint(id, 10)] = messageValue(id, msg)
	}

	reports := ir.Object{}
	for _, id := range m.reports.Keys() {
		r, _ := m.reports.Get(id)
		reports[strconv.FormatUint(id, 10)] = reportValue(id, r)
	}

	reputation := ir.Object{}
	for _, account := range m.rep.Keys() {
		r, _ := m.rep.Get(account)
		reputation[string(account)] = reputationValue(r)
	}

	return ir.Obj(
		ir.O("next_group_id", ir.Uint(m.nextGroupID.Peek())),
		ir.O("next_message_id", ir.Uint(m.nextMessageID.Peek())),
		ir.O("next_report_id", ir.Uint(m.nextReportID.Peek())),
		ir.O("groups", groups),
		ir.O("members", groupPairs(m.members)),
		ir.O("admins", groupPairs(m.admins)),
		ir.O("messages", messages),
		ir.O("inbox", inboxPairs(m.inbox)),
		ir.O("reports", reports),
		ir.O("reputation", reputation),
		ir.O("blocked", accountPairs(m.blocked)),
	)
}

// Digest implements chain.Module.
func (m *Module) Digest() ir.Object {
	return ir.Obj(
		ir.O("next_group_id", ir.Uint(m.nextGroupID.Peek())),
		ir.O("next_message_id", ir.Uint(m.nextMessageID.Peek())),
		ir.O("next_report_id", ir.Uint(m.nextReportID.Peek())),
		ir.O("groups", kv.Summary(m.groups)),
		ir.O("members", kv.Summary(m.members)),
		ir.O("admins", kv.Summary(m.admins)),
		ir.O("messages", kv.Summary(m.messages)),
		ir.O("inbox", kv.Summary(m.inbox)),
		ir.O("reports", kv.Summary(m.reports)),
		ir.O("reputation", kv.Summary(m.rep)),
		ir.O("blocked", kv.Summary(m.blocked)),
	)
}

func groupEntry(id uint64, g Group) ir.Value       { return groupValue(id, g) }
func messageEntry(id uint64, msg Message) ir.Value { return messageValue(id, msg) }
func reportEntry(id uint64, r Report) ir.Value     { return reportValue(id, r) }

func reputationEntry(account chain.AccountID, r Reputation) ir.Value {
	return ir.Array{chain.Account(account), reputationValue(r)}
}

func memberEntry(k memberKey) ir.Value {
	return ir.Array{ir.Uint(k.First), chain.Account(k.Second)}
}

func inboxEntry(k inboxKey) ir.Value {
	return ir.Array{chain.Account(k.First), ir.Uint(k.Second)}
}

func blockEntry(k accountPair) ir.Value {
	return ir.Array{chain.Account(k.First), chain.Account(k.Second)}
}

func groupPairs(s *kv.Set[memberKey]) ir.Array {
	arr := make(ir.Array, 0, s.Len())
	for _, k := range s.Keys() {
		arr = append(arr, ir.Array{ir.Uint(k.First), chain.Account(k.Second)})
	}
	return arr
}

func inboxPairs(s *kv.Set[inboxKey]) ir.Array {
	arr := make(ir.Array, 0, s.Len())
	for _, k := range s.Keys() {
		arr = append(arr, ir.Array{chain.Account(k.First), ir.Uint(k.Second)})
	}
	return arr
}

func accountPairs(s *kv.Set[accountPair]) ir.Array {
	arr := make(ir.Array, 0, s.Len())
	for _, k := range s.Keys() {
		arr = append(arr, ir.Array{chain.Account(k.First), chain.Account(k.Second)})
	}
	return arr
}

func groupValue(id uint64, g Group) ir.Object {
	return ir.Obj(
		ir.O("group_id", ir.Uint(id)),
		ir.O("creator", chain.Account(g.Creator)),
		ir.O("name", ir.String(g.Name)),
		ir.O("description", ir.String(g.Description)),
		ir.O("avatar_hash", ir.OptString(g.AvatarHash)),
		ir.O("member_count", ir.Int(g.MemberCount)),
		ir.O("is_public", ir.Bool(g.IsPublic)),
		ir.O("created_at", ir.Uint(g.CreatedAt)),
		ir.O("deposit", ir.Uint(g.Deposit)),
	)
}

func messageValue(id uint64, msg Message) ir.Object {
	return ir.Obj(
		ir.O("message_id", ir.Uint(id)),
		ir.O("sender", chain.Account(msg.Sender)),
		ir.O("recipient", chain.Account(msg.Recipient)),
		ir.O("content_hash", ir.String(msg.ContentHash)),
		ir.O("timestamp", ir.Uint(msg.Timestamp)),
		ir.O("is_read", ir.Bool(msg.IsRead)),
	)
}

func reportValue(id uint64, r Report) ir.Object {
	return ir.Obj(
		ir.O("report_id", ir.Uint(id)),
		ir.O("reporter", chain.Account(r.Reporter)),
		ir.O("target_account", chain.OptAccount(r.TargetAccount)),
		ir.O("content_hash", ir.OptString(r.ContentHash)),
		ir.O("reason", ir.String(r.Reason)),
		ir.O("description", ir.String(r.Description)),
		ir.O("timestamp", ir.Uint(r.Timestamp)),
		ir.O("status", ir.String(r.Status)),
	)
}

func reputationValue(r Reputation) ir.Object {
	return ir.Obj(
		ir.O("score", ir.Int(r.Score)),
		ir.O("positive_votes", ir.Int(r.PositiveVotes)),
		ir.O("negative_votes", ir.Int(r.NegativeVotes)),
		ir.O("last_updated", ir.Uint(r.LastUpdated)),
	)
}
