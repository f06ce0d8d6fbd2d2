package community

import (
	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

// Message is a private message indexed into the recipient's inbox.
type Message struct {
	Sender      chain.AccountID
	Recipient   chain.AccountID
	ContentHash string
	Timestamp   chain.Time
	IsRead      bool
}

type sendArgs struct {
	Recipient   chain.AccountID `mapstructure:"recipient"`
	ContentHash string          `mapstructure:"content_hash"`
}

type messageIDArgs struct {
	MessageID uint64 `mapstructure:"message_id"`
}

func (m *Module) applySendMessage(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a sendArgs
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	id, err := m.SendMessage(ctx, a.Recipient, a.ContentHash)
	if err != nil {
		return nil, err
	}
	return ir.Obj(ir.O("message_id", ir.Uint(id))), nil
}

func (m *Module) applyMarkRead(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a messageIDArgs
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	return ir.Object{}, m.MarkRead(ctx, a.MessageID)
}

// SendMessage stores a message from the caller unless the recipient has
// blocked the caller.
func (m *Module) SendMessage(ctx *chain.Ctx, recipient chain.AccountID, contentHash string) (uint64, error) {
	if recipient == ctx.Caller {
		return 0, chain.Reject(Name, chain.CodeCannotMessageSelf, "%s", recipient)
	}
	if m.blocked.Contains(kv.P(recipient, ctx.Caller)) {
		return 0, chain.Reject(Name, chain.CodeUserBlocked, "%s blocked %s", recipient, ctx.Caller)
	}
	if uint64(len(contentHash)) > uint64(m.params.MaxMessageLength) {
		return 0, chain.Reject(Name, chain.CodeMessageTooLong, "%d bytes exceeds %d", len(contentHash), m.params.MaxMessageLength)
	}
	id, err := m.nextMessageID.Allocate()
	if err != nil {
		return 0, chain.Reject(Name, chain.CodeIDExhausted, "%v", err)
	}

	m.messages.Insert(id, Message{
		Sender:      ctx.Caller,
		Recipient:   recipient,
		ContentHash: contentHash,
		Timestamp:   ctx.Time,
	})
	m.inbox.Add(kv.P(recipient, id))

	ctx.Emit("PrivateMessageSent",
		ir.O("message_id", ir.Uint(id)),
		ir.O("sender", chain.Account(ctx.Caller)),
		ir.O("recipient", chain.Account(recipient)),
	)
	return id, nil
}

// MarkRead flags a message as read. Only its recipient may do so.
func (m *Module) MarkRead(ctx *chain.Ctx, messageID uint64) error {
	msg, ok := m.messages.Get(messageID)
	if !ok {
		return chain.Reject(Name, chain.CodeMessageNotFound, "message %d", messageID)
	}
	if msg.Recipient != ctx.Caller {
		return chain.Reject(Name, chain.CodeUnauthorized, "%s is not the recipient of message %d", ctx.Caller, messageID)
	}

	msg.IsRead = true
	m.messages.Insert(messageID, msg)

	ctx.Emit("PrivateMessageRead",
		ir.O("message_id", ir.Uint(messageID)),
		ir.O("reader", chain.Account(ctx.Caller)),
	)
	return nil
}

// Inbox lists the message ids delivered to account, oldest first.
func (m *Module) Inbox(account chain.AccountID) []uint64 {
	return kv.Seconds(m.inbox, account)
}
