package mcp

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"toolhub/internal/audit"
	"toolhub/internal/redact"
)

var defaultSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// RemoteTool binds one remote tool descriptor to the session of the peer
// that exposed it.
type RemoteTool struct {
	peer    string
	name    string
	def     *sdkmcp.Tool
	params  json.RawMessage
	session Session

	observer *Observer
	audit    *audit.Logger
	redactor *redact.Redactor
	repair   bool
}

// NewRemoteTool adapts def, discovered on peer, into a Tool.
func NewRemoteTool(peer string, def *sdkmcp.Tool, session Session) *RemoteTool {
	return &RemoteTool{
		peer:     peer,
		name:     def.Name,
		def:      def,
		params:   schemaJSON(def.InputSchema),
		session:  session,
		redactor: redact.New(),
	}
}

func (t *RemoteTool) Name() string { return t.name }

// RemoteName is the name the peer knows the tool by.
func (t *RemoteTool) RemoteName() string { return t.def.Name }

func (t *RemoteTool) Peer() string { return t.peer }

func (t *RemoteTool) Definition(_ context.Context) ToolDefinition {
	return ToolDefinition{
		Name:        t.name,
		Description: t.def.Description,
		Parameters:  t.params,
	}
}

// EmbeddingDocs returns the text to index the tool by.
func (t *RemoteTool) EmbeddingDocs() []string {
	if t.def.Description == "" {
		return []string{t.name}
	}
	return []string{t.def.Description}
}

// Context returns the remote descriptor as JSON.
func (t *RemoteTool) Context() (json.RawMessage, error) {
	data, err := json.Marshal(t.def)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal tool %q", t.name)
	}
	return data, nil
}

// Call invokes the remote tool with args, a JSON object or null.
// Malformed args fail with KindInvalidArguments before any request is sent.
// Transport and protocol failures are KindRemoteFailure. A result the peer
// flagged as an error is returned as its serialized envelope, not as an error.
func (t *RemoteTool) Call(ctx context.Context, args string) (string, error) {
	ctx, done := t.observer.StartCall(ctx, t.peer, t.name)
	started := time.Now()
	event := audit.Event{
		Timestamp: started.UTC(),
		CallID:    uuid.NewString(),
		Peer:      t.peer,
		Tool:      t.name,
	}

	parsed, err := t.parseArguments(ctx, args)
	if err != nil {
		err = &ToolCallError{Kind: KindInvalidArguments, Peer: t.peer, Tool: t.name, Err: err}
		t.finish(event, started, audit.OutcomeRejected, err)
		done(err)
		return "", err
	}
	event.Arguments = t.redactor.RedactMap(parsed)

	logger.ContextKV(ctx, xlog.DEBUG,
		"reason", "call",
		"peer", t.peer,
		"tool", t.name,
		"call_id", event.CallID,
	)
	res, err := t.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: t.def.Name, Arguments: parsed})
	if err == nil && res == nil {
		err = errors.New("empty result")
	}
	if err != nil {
		err = &ToolCallError{Kind: KindRemoteFailure, Peer: t.peer, Tool: t.name, Err: err}
		t.finish(event, started, audit.OutcomeError, err)
		done(err)
		return "", err
	}

	out, err := flattenResult(res)
	if err != nil {
		err = &ToolCallError{Kind: KindRemoteFailure, Peer: t.peer, Tool: t.name, Err: errors.Wrap(err, "encode result")}
		t.finish(event, started, audit.OutcomeError, err)
		done(err)
		return "", err
	}
	outcome := audit.OutcomeSuccess
	if res.IsError {
		outcome = audit.OutcomeToolError
	}
	t.finish(event, started, outcome, nil)
	done(nil)
	return out, nil
}

func (t *RemoteTool) parseArguments(ctx context.Context, args string) (map[string]any, error) {
	if strings.TrimSpace(args) == "" {
		return nil, errors.New("arguments are empty; pass {} for no arguments")
	}
	parsed, err := decodeObject(args)
	if err == nil {
		return parsed, nil
	}
	if !t.repair {
		return nil, err
	}
	repaired, rerr := jsonrepair.JSONRepair(args)
	if rerr != nil {
		return nil, err
	}
	parsed, rerr = decodeObject(repaired)
	if rerr != nil {
		return nil, err
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"reason", "repaired_arguments",
		"peer", t.peer,
		"tool", t.name,
	)
	return parsed, nil
}

func (t *RemoteTool) finish(event audit.Event, started time.Time, outcome string, err error) {
	if t.audit == nil {
		return
	}
	event.Outcome = outcome
	event.DurationMS = time.Since(started).Milliseconds()
	if err != nil {
		event.Error = err.Error()
	}
	t.audit.Log(event)
}

// decodeObject accepts exactly one JSON object or null.
func decodeObject(raw string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, errors.Wrap(err, "arguments must be a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("arguments must be a single JSON object")
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// flattenResult returns the text of a result made of one plain text block,
// and the JSON envelope of anything else.
func flattenResult(res *sdkmcp.CallToolResult) (string, error) {
	if !res.IsError && res.StructuredContent == nil && len(res.Meta) == 0 && len(res.Content) == 1 {
		if text, ok := res.Content[0].(*sdkmcp.TextContent); ok && len(text.Meta) == 0 && text.Annotations == nil {
			return text.Text, nil
		}
	}
	data, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func schemaJSON(schema any) json.RawMessage {
	if schema == nil {
		return defaultSchema
	}
	data, err := json.Marshal(schema)
	if err != nil || string(data) == "null" || string(data) == "{}" {
		return defaultSchema
	}
	return data
}
