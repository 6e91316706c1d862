package command

import (
	"context"
	"encoding/json"
)

// Command is the envelope operators submit over NATS or the HTTP API.
type Command struct {
	Action        string          `json:"action" validate:"required"`
	ChargePointID string          `json:"chargePointId" validate:"required"`
	Payload       json.RawMessage `json:"payload"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Response struct {
	Payload any    `json:"payload,omitempty"`
	Err     *Error `json:"error,omitempty"`
}

type HandlerFunc func(ctx context.Context, chargePointID string, payload []byte) Response

func Fail(code, message string) Response {
	return Response{Err: &Error{Code: code, Message: message}}
}
