package smsbox

import (
	"strings"
)

// MessageClass is the data coding message class of a received PDU.
type MessageClass int

const (
	ClassUnknown MessageClass = iota
	// Class0 messages are shown immediately and never stored.
	Class0
	Class1
	Class2
	Class3
)

func (c MessageClass) String() string {
	switch c {
	case Class0:
		return "class0"
	case Class1:
		return "class1"
	case Class2:
		return "class2"
	case Class3:
		return "class3"
	default:
		return "unknown"
	}
}

// Protocol identifiers that mark a replace short message (TS 23.040 9.2.3.9).
const (
	ProtocolReplaceType1 = 0x41
	ProtocolReplaceType7 = 0x47
	ProtocolReturnCall   = 0x5F
)

// PDU is one decoded part of a received short message.
// A multipart message arrives as several PDUs sharing the header fields of
// the first part.
type PDU struct {
	// OriginatingAddress is the sender as it should be displayed.
	OriginatingAddress string
	// DisplayBody is the decoded text of this part.
	DisplayBody string
	// Protocol is the TP-PID protocol identifier.
	Protocol int
	Class    MessageClass
	// ReplyPathPresent reports whether the sender's SMSC may be used for replies.
	ReplyPathPresent bool
	ServiceCenter    string
	// PseudoSubject is set by some networks for email gateway messages.
	PseudoSubject string
	// Raw is the undecoded payload, handed to the display for class-zero messages.
	Raw []byte
}

// IsReplace reports whether the PDU asks to overwrite an earlier message from
// the same sender with the same protocol identifier.
func (p PDU) IsReplace() bool {
	return (p.Protocol >= ProtocolReplaceType1 && p.Protocol <= ProtocolReplaceType7) ||
		p.Protocol == ProtocolReturnCall
}

// joinBodies concatenates part bodies in arrival order.
func joinBodies(parts []PDU) string {
	if len(parts) == 1 {
		return parts[0].DisplayBody
	}
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.DisplayBody)
	}
	return sb.String()
}

// ResultCode is the outcome of a send attempt as reported by the radio.
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultGenericFailure
	ResultRadioOff
	ResultNullPDU
	ResultNoService
)

// Transient reports whether the failure is caused by missing connectivity.
// Transient failures re-queue the message instead of failing it.
func (c ResultCode) Transient() bool {
	return c == ResultRadioOff || c == ResultNoService
}

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "ok"
	case ResultGenericFailure:
		return "generic_failure"
	case ResultRadioOff:
		return "radio_off"
	case ResultNullPDU:
		return "null_pdu"
	case ResultNoService:
		return "no_service"
	default:
		return "unknown"
	}
}

// ServiceState is the radio's network registration state.
type ServiceState int

const (
	StateInService ServiceState = iota
	StateOutOfService
	StateEmergencyOnly
	StatePowerOff
)

func (s ServiceState) String() string {
	switch s {
	case StateInService:
		return "in_service"
	case StateOutOfService:
		return "out_of_service"
	case StateEmergencyOnly:
		return "emergency_only"
	case StatePowerOff:
		return "power_off"
	default:
		return "unknown"
	}
}
