package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RequestKind identifies what a UI client asked for.
type RequestKind string

const (
	RequestList   RequestKind = "list"
	RequestDetail RequestKind = "detail"
)

// Request is a typed request from a UI client.
// RecipeID is only meaningful for RequestDetail.
type Request struct {
	Kind     RequestKind
	RecipeID string
}

// ResponseKind tags the outcome of a request.
type ResponseKind string

const (
	ResponseList   ResponseKind = "list"
	ResponseDetail ResponseKind = "detail"
	ResponseError  ResponseKind = "error"
)

// Response is the typed reply to a Request. Data is set for list and detail
// responses, Message for errors. Cached reports whether Data came from the
// local cache and is never sent over the wire.
type Response struct {
	Kind    ResponseKind
	Data    json.RawMessage
	Message string
	Cached  bool
}

// ErrorResponse builds an error Response carrying msg.
func ErrorResponse(msg string) Response {
	return Response{Kind: ResponseError, Message: msg}
}

// IsError reports whether r is an error response.
func (r Response) IsError() bool {
	return r.Kind == ResponseError
}

// Wire message types exchanged with UI clients.
const (
	TypeFetchRecipesList   = "FETCH_RECIPES_LIST"
	TypeFetchRecipeDetails = "FETCH_RECIPE_DETAILS"
	TypeRecipesList        = "RECIPES_LIST"
	TypeRecipeDetails      = "RECIPE_DETAILS"
)

// Message is an inbound wire message. ID is optional and opaque; when
// present it is echoed on the reply.
type Message struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Type     string          `json:"type"`
	RecipeID RecipeID        `json:"recipeId,omitempty"`
}

// RecipeID accepts both JSON strings and JSON numbers.
type RecipeID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *RecipeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = RecipeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("recipeId must be a string or number: %w", err)
	}
	*id = RecipeID(n.String())
	return nil
}

// Request converts the wire message to a typed Request. It returns false
// for message types the worker does not handle.
func (m Message) Request() (Request, bool) {
	switch m.Type {
	case TypeFetchRecipesList:
		return Request{Kind: RequestList}, true
	case TypeFetchRecipeDetails:
		return Request{Kind: RequestDetail, RecipeID: string(m.RecipeID)}, true
	default:
		return Request{}, false
	}
}

// Reply is an outbound wire message.
type Reply struct {
	ID    json.RawMessage `json:"id,omitempty"`
	Type  string          `json:"type,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// NewReply converts a typed Response to its wire form.
func NewReply(resp Response) Reply {
	switch resp.Kind {
	case ResponseList:
		return Reply{Type: TypeRecipesList, Data: resp.Data}
	case ResponseDetail:
		return Reply{Type: TypeRecipeDetails, Data: resp.Data}
	default:
		return Reply{Error: resp.Message}
	}
}
