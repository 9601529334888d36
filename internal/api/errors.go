package api

import "errors"

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrQueueNotFound  = errors.New("queue not found")
	ErrInvalidState   = errors.New("invalid ticket state")
	ErrInvalidRequest = errors.New("invalid request")
	ErrRateLimited    = errors.New("rate limited")
	ErrBadPayload     = errors.New("malformed server payload")
	ErrServer         = errors.New("server error")
)

func errorForCode(statusCode int, code string) error {
	switch code {
	case "ticket_not_found":
		return ErrTicketNotFound
	case "queue_not_found", "service_not_found":
		return ErrQueueNotFound
	case "invalid_state":
		return ErrInvalidState
	case "invalid_request", "invalid_json":
		return ErrInvalidRequest
	case "rate_limited":
		return ErrRateLimited
	case "unauthorized", "session_expired":
		return ErrUnauthorized
	}
	switch statusCode {
	case 401:
		return ErrUnauthorized
	case 404:
		return ErrTicketNotFound
	case 400:
		return ErrInvalidRequest
	case 429:
		return ErrRateLimited
	}
	return ErrServer
}
