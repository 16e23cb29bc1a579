package mcp

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
	sdkjsonrpc "github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

var (
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrRemoteFailure    = errors.New("remote failure")
	ErrToolNotFound     = errors.New("tool not found")
)

type ErrorKind string

const (
	KindInvalidArguments ErrorKind = "invalid_arguments"
	KindRemoteFailure    ErrorKind = "remote_failure"
	KindNotFound         ErrorKind = "tool_not_found"
)

// ToolCallError is returned by every failed tool invocation.
type ToolCallError struct {
	Kind ErrorKind
	Peer string
	Tool string
	Err  error
}

func (e *ToolCallError) Error() string {
	msg := fmt.Sprintf("tool %q: %s", e.Tool, strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.Peer != "" {
		msg = fmt.Sprintf("peer %q %s", e.Peer, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolCallError) Unwrap() error { return e.Err }

func (e *ToolCallError) Is(target error) bool {
	switch e.Kind {
	case KindInvalidArguments:
		return target == ErrInvalidArguments
	case KindRemoteFailure:
		return target == ErrRemoteFailure
	case KindNotFound:
		return target == ErrToolNotFound
	}
	return false
}

// ConnectError reports a peer that could not be reached or initialized.
type ConnectError struct {
	Peer string
	Type TransportType
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s peer %q: %v", e.Type, e.Peer, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DiscoveryError reports a peer whose tool catalog could not be listed.
type DiscoveryError struct {
	Peer string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("list tools from peer %q: %v", e.Peer, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
}

type ErrorEnvelope struct {
	Error   ErrorDetail `json:"error"`
	Details any         `json:"details,omitempty"`
}

func BuildErrorEnvelope(err error, details any) map[string]any {
	envelope := ErrorEnvelope{Error: Classify(err)}
	out := map[string]any{"error": envelope.Error}
	if details != nil {
		out["details"] = details
	}
	return out
}

// Classify maps err to a stable, machine readable ErrorDetail.
func Classify(err error) ErrorDetail {
	detail := classify(err)
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		detail.Hint = strings.Join(hints, " ")
	}
	return detail
}

func classify(err error) ErrorDetail {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorDetail{Code: "timeout", Message: msg, Hint: "Increase the timeout or check peer latency.", Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return ErrorDetail{Code: "canceled", Message: msg, Hint: "Request was canceled before completion.", Retryable: true}
	}
	if errors.Is(err, ErrInvalidArguments) {
		return ErrorDetail{Code: string(KindInvalidArguments), Message: msg, Hint: "Arguments must be a JSON object.", Retryable: false}
	}
	if errors.Is(err, ErrToolNotFound) {
		return ErrorDetail{Code: string(KindNotFound), Message: msg, Hint: "List tools to see what peers expose.", Retryable: false}
	}

	var wire *sdkjsonrpc.Error
	if errors.As(err, &wire) {
		switch wire.Code {
		case sdkjsonrpc.CodeInvalidParams:
			return ErrorDetail{Code: "invalid_params", Message: msg, Hint: "The peer rejected the arguments or tool name.", Retryable: false}
		case sdkjsonrpc.CodeMethodNotFound:
			return ErrorDetail{Code: "method_not_found", Message: msg, Hint: "The peer does not support this method.", Retryable: false}
		}
	}

	var connErr *ConnectError
	if errors.As(err, &connErr) {
		hint := "Check the peer address and that it speaks the protocol."
		if errors.Is(err, exec.ErrNotFound) {
			hint = "The peer command was not found on PATH."
		}
		return ErrorDetail{Code: "connect_failed", Message: msg, Hint: hint, Retryable: true}
	}
	var discErr *DiscoveryError
	if errors.As(err, &discErr) {
		return ErrorDetail{Code: "discovery_failed", Message: msg, Hint: "The peer connected but could not list tools.", Retryable: true}
	}
	if errors.Is(err, ErrRemoteFailure) {
		return ErrorDetail{Code: string(KindRemoteFailure), Message: msg, Hint: "The peer failed to execute the call.", Retryable: true}
	}
	if isInvalidRequestMessage(msg) {
		return ErrorDetail{Code: "invalid_request", Message: msg, Hint: "Fix request parameters or schema.", Retryable: false}
	}
	return ErrorDetail{Code: "internal", Message: msg, Hint: "Check logs for details.", Retryable: false}
}

func isInvalidRequestMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "required") || strings.Contains(lower, "invalid") || strings.Contains(lower, "missing")
}
