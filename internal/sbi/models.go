package sbi

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// IntBytes is an encoded definition carried in registry requests. It
// marshals as a JSON array of integers, one per octet.
type IntBytes []byte

// MarshalJSON implements json.Marshaler.
func (data IntBytes) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, 2+4*len(data))
	out = append(out, '[')
	for index, octet := range data {
		if index > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(octet), 10)
	}
	return append(out, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (data *IntBytes) UnmarshalJSON(raw []byte) error {
	// a plain []byte field would expect base64
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return err
	}
	values := make([]byte, 0, len(ints))
	for index, value := range ints {
		if value < 0 || value > 255 {
			return errors.Errorf("octet %d out of range: %d", index, value)
		}
		values = append(values, byte(value))
	}
	*data = values
	return nil
}

// ClientEndpoint is where the registry and the E2 nodes reach this xApp.
type ClientEndpoint struct {
	Host     string `json:"Host"`
	HTTPPort uint16 `json:"HTTPPort"`
	RMRPort  uint16 `json:"RMRPort"`
}

// SubsequentAction tells the node what to do after the action runs.
type SubsequentAction struct {
	SubsequentActionType string `json:"SubsequentActionType"` // "continue" | "wait"
	TimeToWait           string `json:"TimeToWait"`
}

// ActionToBeSetup is one action of a subscription.
type ActionToBeSetup struct {
	ActionID         int64            `json:"ActionID"`
	ActionType       string           `json:"ActionType"` // "report" | "insert" | "policy"
	ActionDefinition IntBytes         `json:"ActionDefinition"`
	SubsequentAction SubsequentAction `json:"SubsequentAction"`
}

// SubscriptionDetail ties an event trigger to its actions.
type SubscriptionDetail struct {
	XappEventInstanceID int64             `json:"XappEventInstanceId"`
	EventTriggers       IntBytes          `json:"EventTriggers"`
	ActionToBeSetupList []ActionToBeSetup `json:"ActionToBeSetupList"`
}

// SubscriptionParams is the body of POST /subscriptions.
type SubscriptionParams struct {
	SubscriptionID      string               `json:"SubscriptionId"`
	ClientEndpoint      ClientEndpoint       `json:"ClientEndpoint"`
	Meid                string               `json:"Meid"`
	RANFunctionID       int64                `json:"RANFunctionID"`
	SubscriptionDetails []SubscriptionDetail `json:"SubscriptionDetails"`
}

// SubscriptionResponse is the body of a 201 answer to POST /subscriptions.
type SubscriptionResponse struct {
	SubscriptionID string `json:"SubscriptionId"`
}

// SubscriptionNotification is what the registry posts back once the E2 node
// answered. Only the fields logged by the callback handler are decoded.
type SubscriptionNotification struct {
	SubscriptionID        string                 `json:"SubscriptionId"`
	SubscriptionInstances []SubscriptionInstance `json:"SubscriptionInstances"`
}

// SubscriptionInstance is one E2 level outcome inside a notification.
type SubscriptionInstance struct {
	XappEventInstanceID int64  `json:"XappEventInstanceId"`
	E2EventInstanceID   int64  `json:"E2EventInstanceId"`
	ErrorCause          string `json:"ErrorCause,omitempty"`
	ErrorSource         string `json:"ErrorSource,omitempty"`
}
