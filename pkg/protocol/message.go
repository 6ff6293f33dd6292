package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"
)

const Version = "2.0"

var (
	ErrEmptyMessage    = errors.New("empty message")
	ErrUnknownShape    = errors.New("message is neither request, response nor notification")
	ErrAmbiguousResult = errors.New("response must carry exactly one of result or error")
)

// Message is one JSON-RPC 2.0 frame. The concrete type is always one of
// *Request, *Response or *Notification.
type Message interface {
	isMessage()
}

// Request is a call that expects a reply. NullID marks a request whose id
// was an explicit JSON null; it is answered with a null id.
type Request struct {
	ID     jsonrpc2.ID
	NullID bool
	Method string
	Params json.RawMessage
}

// ReplyID is the id a response to r must carry.
func (r *Request) ReplyID() *jsonrpc2.ID {
	if r.NullID {
		return nil
	}
	id := r.ID
	return &id
}

type wireNullIDRequest struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *jsonrpc2.ID     `json:"id"`
	Method  string           `json:"method"`
	Params  *json.RawMessage `json:"params,omitempty"`
}

// Response carries either Result (success) or Error (failure), never both.
// A nil ID encodes as JSON null, used when the request id could not be read.
type Response struct {
	ID     *jsonrpc2.ID
	Result json.RawMessage
	Error  *jsonrpc2.Error
}

type Notification struct {
	Method string
	Params json.RawMessage
}

func (*Request) isMessage()      {}
func (*Response) isMessage()     {}
func (*Notification) isMessage() {}

func NewRequest(id uint64, method string, params interface{}) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	return &Request{ID: jsonrpc2.ID{Num: id}, Method: method, Params: raw}, nil
}

func NewNotification(method string, params interface{}) (*Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	return &Notification{Method: method, Params: raw}, nil
}

func NewResult(id jsonrpc2.ID, result interface{}) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Response{ID: &id, Result: raw}, nil
}

func NewError(id *jsonrpc2.ID, code int64, message string) *Response {
	return &Response{ID: id, Error: &jsonrpc2.Error{Code: code, Message: message}}
}

func (r *Response) Success() bool {
	return r.Error == nil
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *jsonrpc2.ID    `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc2.Error `json:"error,omitempty"`
}

// Encode renders msg as a single line of JSON without the trailing newline.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		var params *json.RawMessage
		if len(m.Params) > 0 {
			raw := m.Params
			params = &raw
		}
		if m.NullID {
			return json.Marshal(wireNullIDRequest{JSONRPC: Version, Method: m.Method, Params: params})
		}
		return json.Marshal(jsonrpc2.Request{Method: m.Method, ID: m.ID, Params: params})
	case *Notification:
		req := jsonrpc2.Request{Method: m.Method, Notif: true}
		if len(m.Params) > 0 {
			params := m.Params
			req.Params = &params
		}
		return json.Marshal(req)
	case *Response:
		if (m.Error == nil) == (len(m.Result) == 0) {
			return nil, ErrAmbiguousResult
		}
		return json.Marshal(wireResponse{
			JSONRPC: Version,
			ID:      m.ID,
			Result:  m.Result,
			Error:   m.Error,
		})
	case nil:
		return nil, ErrEmptyMessage
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}
}

// Decode parses one line into the matching Message variant.
func Decode(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrEmptyMessage
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	if raw, ok := fields["jsonrpc"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil || v != Version {
			return nil, fmt.Errorf("unsupported jsonrpc version %s", string(raw))
		}
	}

	if _, ok := fields["method"]; ok {
		var req jsonrpc2.Request
		if err := json.Unmarshal(line, &req); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		var params json.RawMessage
		if req.Params != nil && !bytes.Equal(*req.Params, []byte("null")) {
			params = *req.Params
		}
		// jsonrpc2 reports "id":null as a notification; only a missing id is one
		rawID, hasID := fields["id"]
		if !hasID {
			return &Notification{Method: req.Method, Params: params}, nil
		}
		if bytes.Equal(bytes.TrimSpace(rawID), []byte("null")) {
			return &Request{NullID: true, Method: req.Method, Params: params}, nil
		}
		return &Request{ID: req.ID, Method: req.Method, Params: params}, nil
	}

	_, hasResult := fields["result"]
	_, hasError := fields["error"]
	if !hasResult && !hasError {
		return nil, ErrUnknownShape
	}
	if hasResult && hasError {
		return nil, ErrAmbiguousResult
	}

	var resp jsonrpc2.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}

	out := &Response{Error: resp.Error}
	if raw, ok := fields["id"]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		id := resp.ID
		out.ID = &id
	}
	if hasResult && resp.Result != nil {
		out.Result = *resp.Result
	}
	if hasError && resp.Error == nil {
		return nil, fmt.Errorf("invalid response: error is null")
	}
	return out, nil
}
