package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"agent-arena/internal/storage"
)

// rpcError is the PostgREST error envelope.
type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e rpcError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("(%s) %s", e.Code, e.Message)
}

// executeErrorPattern matches the "(code) message" errors postgrest-go
// returns from Execute calls.
var executeErrorPattern = regexp.MustCompile(`^\(([0-9A-Z]*)\) (.*)$`)

// parseRPCResult splits an Rpc response body into a payload or an error.
func parseRPCResult(body string) ([]byte, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, errors.New("empty rpc response")
	}
	if strings.HasPrefix(trimmed, "{") {
		var envelope rpcError
		if err := json.Unmarshal([]byte(trimmed), &envelope); err == nil && envelope.Code != "" && envelope.Message != "" {
			return nil, mapError(envelope)
		}
	}
	return []byte(trimmed), nil
}

// wrapExecuteError maps an Execute error onto the storage sentinels.
func wrapExecuteError(err error) error {
	if err == nil {
		return nil
	}
	match := executeErrorPattern.FindStringSubmatch(err.Error())
	if match == nil {
		return err
	}
	return mapError(rpcError{Code: match[1], Message: match[2]})
}

func mapError(e rpcError) error {
	switch {
	case e.Code == "P0002":
		return fmt.Errorf("%w: %s", storage.ErrNotFound, e.Message)
	case e.Code == "40001":
		return fmt.Errorf("%w: %s", storage.ErrConflict, e.Message)
	case e.Code == "P0001" && e.Hint == "insufficient_balance":
		return fmt.Errorf("%w: %s", storage.ErrInsufficientBalance, e.Message)
	case e.Code == "23505":
		return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, e.Message)
	default:
		return e
	}
}
