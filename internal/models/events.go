package models

// Client to server events.
const (
	EventJoin              = "join"
	EventGetStatus         = "getStatus"
	EventSendMessage       = "sendMessage"
	EventSendGroupMessage  = "sendGroupMessage"
	EventSendFile          = "sendFile"
	EventMarkSeen          = "markSeen"
	EventDeleteForMe       = "deleteForMe"
	EventDeleteForEveryone = "deleteForEveryone"
	EventCreateGroup       = "createGroup"
	EventTyping            = "typing"
	EventStopTyping        = "stopTyping"
	EventCallStart         = "call:start"
	EventCallAccept        = "call:accept"
	EventCallReject        = "call:reject"
	EventCallEnd           = "call:end"
)

// Server to client events.
const (
	EventAck                    = "ack"
	EventReceiveMessage         = "receiveMessage"
	EventMessageSent            = "messageSent"
	EventReceiveGroupMessage    = "receiveGroupMessage"
	EventReceiveFile            = "receiveFile"
	EventMessagesSeen           = "messagesSeen"
	EventMessageSeen            = "messageSeen"
	EventMessageBlocked         = "messageBlocked"
	EventMessageDeletedEveryone = "messageDeletedEveryone"
	EventRefreshChatList        = "refreshChatList"
	EventUserOnline             = "userOnline"
	EventUserOffline            = "userOffline"
	EventStatusResponse         = "statusResponse"
	EventGroupCreated           = "groupCreated"
	EventGroupUpdated           = "groupUpdated"
	EventStatusNew              = "statusNew"
	EventStatusViewed           = "statusViewed"
	EventStatusDeleted          = "statusDeleted"
	EventProfileUpdated         = "profileUpdated"
	EventCallIncoming           = "call:incoming"
	EventCallAccepted           = "call:accepted"
	EventCallRejected           = "call:rejected"
	EventCallEnded              = "call:ended"
)

// Frame is the JSON envelope of every websocket text frame.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	AckID string `json:"ackId,omitempty"`
}

// AckError is the error part of an ack frame.
type AckError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Ack answers a client frame that carried an ackId.
type Ack struct {
	AckID string    `json:"ackId"`
	OK    bool      `json:"ok"`
	Error *AckError `json:"error,omitempty"`
	Data  any       `json:"data,omitempty"`
}
