// Package telephony adapts the telephony provider to the dialer.
//
// Dispatch is synchronous and returns once the provider accepted the call.
// The call's completion arrives later through a webhook and is routed to the
// waiting dispatcher by Outcomes.
package telephony

import (
	"context"
	"errors"
	"fmt"
)

// DialRequest is one outbound call to place.
type DialRequest struct {
	// CallID is our CampaignCall id. Providers echo it back on callbacks.
	CallID      string
	CampaignID  string
	WorkspaceID string
	AssistantID string

	To          string
	ContactName string

	// Prompt is the rendered campaign prompt for this contact.
	Prompt string
}

// Handle holds the provider correlation ids of a placed call.
type Handle struct {
	CallSID  string
	RoomName string
}

// Gateway places calls.
type Gateway interface {
	Dispatch(ctx context.Context, req DialRequest) (Handle, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, req DialRequest) (Handle, error)

func (f GatewayFunc) Dispatch(ctx context.Context, req DialRequest) (Handle, error) {
	return f(ctx, req)
}

var ErrInvalidRequest = errors.New("telephony: invalid dial request")

func (r DialRequest) validate() error {
	if r.CallID == "" {
		return fmt.Errorf("%w: call id required", ErrInvalidRequest)
	}
	if r.To == "" {
		return fmt.Errorf("%w: destination required", ErrInvalidRequest)
	}
	return nil
}

// RoomName is the media room the assistant joins for a call.
func RoomName(callID string) string { return "call-" + callID }
