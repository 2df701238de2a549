package protocol

const (
	TagAction       = "Action"
	TagReference    = "Reference"
	TagIssuedAt     = "Issued-At"
	TagDataProtocol = "Data-Protocol"
	TagVariant      = "Variant"
	TagType         = "Type"

	DataProtocol = "ao"
	Variant      = "ao.TN.1"
	TypeMessage  = "Message"

	// ResultSuffix is appended to an action name to form the reply action.
	ResultSuffix = "Result"

	maxUnwrapDepth = 4
)

type Action string

const (
	ActionAcceptChatroom        Action = "AcceptChatroom"
	ActionAcceptInvitation      Action = "AcceptInvitation"
	ActionCreateChatroom        Action = "CreateChatroom"
	ActionGetChatrooms          Action = "GetChatrooms"
	ActionGetContacts           Action = "GetContacts"
	ActionGetMessages           Action = "GetMessages"
	ActionGetPendingInvitations Action = "GetPendingInvitations"
	ActionGetSignals            Action = "GetSignals"
	ActionHealthCheck           Action = "health-check"
	ActionJoin                  Action = "Join"
	ActionPublishSignal         Action = "PublishSignal"
	ActionRejectInvitation      Action = "RejectInvitation"
	ActionRemoveContact         Action = "RemoveContact"
	ActionSend                  Action = "Send"
	ActionSendInvitation        Action = "SendInvitation"
	ActionUpdateNickname        Action = "UpdateNickname"
)

func (a Action) String() string { return string(a) }

// ResultAction is the action name the actor tags its reply with.
func (a Action) ResultAction() Action { return a + ResultSuffix }

// ReplyActions are the actions whose callers wait for the actor's reply by default.
var ReplyActions = []Action{
	ActionGetChatrooms,
	ActionGetContacts,
	ActionGetMessages,
	ActionGetPendingInvitations,
	ActionGetSignals,
	ActionHealthCheck,
}

type ErrorCode uint16

const (
	ErrUnknown           ErrorCode = 0x0000
	ErrInvalidRequest    ErrorCode = 0x0001
	ErrSignerUnavailable ErrorCode = 0x0002
	ErrSubmissionFailure ErrorCode = 0x0003
	ErrTimeout           ErrorCode = 0x0004
	ErrDuplicateToken    ErrorCode = 0x0005
	ErrDecodeFailure     ErrorCode = 0x0006
	ErrStrategyExhausted ErrorCode = 0x0007
	ErrCancelled         ErrorCode = 0x0008
	ErrRejected          ErrorCode = 0x0009
)

func (e ErrorCode) String() string {
	switch e {
	case ErrInvalidRequest:
		return "InvalidRequest"
	case ErrSignerUnavailable:
		return "SignerUnavailable"
	case ErrSubmissionFailure:
		return "SubmissionFailure"
	case ErrTimeout:
		return "Timeout"
	case ErrDuplicateToken:
		return "DuplicateToken"
	case ErrDecodeFailure:
		return "DecodeFailure"
	case ErrStrategyExhausted:
		return "StrategyExhausted"
	case ErrCancelled:
		return "Cancelled"
	case ErrRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Error lets a bare code be used as an errors.Is target.
func (e ErrorCode) Error() string { return e.String() }

// Retryable reports whether a call that failed with this code may be attempted again.
func (e ErrorCode) Retryable() bool {
	return e == ErrSubmissionFailure || e == ErrTimeout
}

type DecodeVariant uint8

const (
	VariantNone DecodeVariant = iota
	VariantDirectSuccess
	VariantNestedOutputString
	VariantNestedOutputObject
	VariantOpaquePassthrough
)

func (v DecodeVariant) String() string {
	switch v {
	case VariantDirectSuccess:
		return "DirectSuccess"
	case VariantNestedOutputString:
		return "NestedOutputString"
	case VariantNestedOutputObject:
		return "NestedOutputObject"
	case VariantOpaquePassthrough:
		return "OpaquePassthrough"
	default:
		return "None"
	}
}
