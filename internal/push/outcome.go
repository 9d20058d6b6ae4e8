package push

import "fmt"

//OutcomeKind Result of a delivery to one recipient.
type OutcomeKind int

const (
	//Delivered Gateway accepted the message for the recipient.
	Delivered OutcomeKind = iota
	//InvalidRegistration Gateway says the registration identifier is dead.
	InvalidRegistration
	//Replaced Gateway rotated the registration identifier, see RecipientOutcome.NewRegistrationID.
	Replaced
	//TransientFailure Not delivered, the identifier is still considered valid.
	TransientFailure
)

var outcomeKindNames = map[OutcomeKind]string{
	Delivered:           "delivered",
	InvalidRegistration: "invalid_registration",
	Replaced:            "replaced",
	TransientFailure:    "transient_failure",
}

func (k OutcomeKind) String() string {
	if name, ok := outcomeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

//MarshalText Encodes kind by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

//UnmarshalText Decodes kind from its name.
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	for kind, name := range outcomeKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind '%s'", text)
}

//RecipientOutcome Delivery outcome of one registration identifier.
type RecipientOutcome struct {
	RegistrationID    string      `json:"registrationId"`
	Kind              OutcomeKind `json:"kind"`
	NewRegistrationID string      `json:"newRegistrationId,omitempty"`
	Message           string      `json:"message,omitempty"`
}

//DeliveredTo Outcome for a delivered message.
func DeliveredTo(id string) RecipientOutcome {
	return RecipientOutcome{RegistrationID: id, Kind: Delivered}
}

//Invalid Outcome for a dead registration identifier.
func Invalid(id, msg string) RecipientOutcome {
	return RecipientOutcome{RegistrationID: id, Kind: InvalidRegistration, Message: msg}
}

//ReplacedWith Outcome for a rotated registration identifier.
func ReplacedWith(id, newID string) RecipientOutcome {
	return RecipientOutcome{RegistrationID: id, Kind: Replaced, NewRegistrationID: newID}
}

//Failed Outcome for a transient failure.
func Failed(id, msg string) RecipientOutcome {
	return RecipientOutcome{RegistrationID: id, Kind: TransientFailure, Message: msg}
}
