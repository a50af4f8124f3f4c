package settlement

import (
	"bytes"
	"encoding/json"
)

// ResponseKind tags the shape a backend answered with.
type ResponseKind string

const (
	ResponsePaged  ResponseKind = "paged"
	ResponseList   ResponseKind = "list"
	ResponseSingle ResponseKind = "single"
	ResponseEmpty  ResponseKind = "empty"
)

// Response is a backend answer collapsed into one tagged form.
type Response struct {
	Kind    ResponseKind
	Records []RawRecord
	Page    *PageMeta
}

// PagedResponse builds a paged response.
func PagedResponse(records []RawRecord, meta PageMeta) Response {
	return Response{Kind: ResponsePaged, Records: records, Page: &meta}
}

// ListResponse builds a bare-array response.
func ListResponse(records []RawRecord) Response {
	return Response{Kind: ResponseList, Records: records}
}

// SingleResponse builds a single-object response.
func SingleResponse(record RawRecord) Response {
	return Response{Kind: ResponseSingle, Records: []RawRecord{record}}
}

// EmptyResponse is returned for unrecognised payloads.
func EmptyResponse() Response {
	return Response{Kind: ResponseEmpty}
}

// DecodeResponse detects the payload shape: a paged object with content, a bare
// array, or a single object. Anything else degrades to an empty response.
func DecodeResponse(body []byte) Response {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return EmptyResponse()
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return EmptyResponse()
	}
	return shapeOf(payload)
}

func shapeOf(payload any) Response {
	switch val := payload.(type) {
	case []any:
		return ListResponse(rawRecords(val))
	case map[string]any:
		if content, ok := val["content"]; ok {
			items, _ := content.([]any)
			raw := RawRecord(val)
			meta := PageMeta{
				Page:          int(raw.int64("number", "page")),
				TotalPages:    int(raw.int64("totalPages", "total_pages")),
				TotalElements: raw.int64("totalElements", "total_elements"),
			}
			return PagedResponse(rawRecords(items), meta)
		}
		if data, ok := val["data"]; ok && len(val) <= 3 {
			// envelope {"data": ...}
			return shapeOf(data)
		}
		return SingleResponse(RawRecord(val))
	}
	return EmptyResponse()
}

func rawRecords(items []any) []RawRecord {
	out := make([]RawRecord, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, RawRecord(obj))
		}
	}
	return out
}
