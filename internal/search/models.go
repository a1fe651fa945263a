package search

// Refresh controls when bulk writes become visible to search.
type Refresh string

const (
	RefreshFalse   Refresh = "false"
	RefreshWaitFor Refresh = "wait_for"
)

// Document is one upsert-by-id operation in a bulk request.
type Document struct {
	ID     string
	Source any
}

// BulkResponse is the decoded body of a bulk request.
type BulkResponse struct {
	Took   int        `json:"took"`
	Errors bool       `json:"errors"`
	Items  []BulkItem `json:"items"`
}

// BulkItem is a tagged variant keyed by operation kind. Exactly one field is set.
type BulkItem struct {
	Create *ActionResult `json:"create,omitempty"`
	Delete *ActionResult `json:"delete,omitempty"`
	Index  *ActionResult `json:"index,omitempty"`
	Update *ActionResult `json:"update,omitempty"`
}

// ActionResult is the payload shared by every bulk item variant.
type ActionResult struct {
	Index  string       `json:"_index"`
	ID     string       `json:"_id"`
	Status int          `json:"status"`
	Error  *ActionError `json:"error,omitempty"`
}

// ActionError is the per-item failure reason reported by the engine.
type ActionError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Kind returns the operation name of the variant that is set.
func (i BulkItem) Kind() string {
	switch {
	case i.Create != nil:
		return "create"
	case i.Delete != nil:
		return "delete"
	case i.Index != nil:
		return "index"
	case i.Update != nil:
		return "update"
	}
	return ""
}

// Result returns the shared payload regardless of variant, or nil for an empty item.
func (i BulkItem) Result() *ActionResult {
	switch {
	case i.Create != nil:
		return i.Create
	case i.Delete != nil:
		return i.Delete
	case i.Index != nil:
		return i.Index
	case i.Update != nil:
		return i.Update
	}
	return nil
}

// Accepted reports whether the engine acknowledged the item with a 2xx status.
func (r *ActionResult) Accepted() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// AcceptedCount returns the number of items the engine acknowledged.
func (r *BulkResponse) AcceptedCount() int {
	n := 0
	for _, item := range r.Items {
		if item.Result().Accepted() {
			n++
		}
	}
	return n
}

// Rejected returns the items that were not acknowledged.
func (r *BulkResponse) Rejected() []*ActionResult {
	var out []*ActionResult
	for _, item := range r.Items {
		if res := item.Result(); res != nil && !res.Accepted() {
			out = append(out, res)
		}
	}
	return out
}
