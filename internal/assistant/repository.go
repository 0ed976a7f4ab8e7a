package assistant

import "context"

// Repository persists assistants (one per tenant) together with their tools.
type Repository interface {
	Get(ctx context.Context, tenantID string) (Assistant, error)

	// Save upserts the assistant and replaces its tool set in one logical write.
	Save(ctx context.Context, a Assistant) (Assistant, error)
}

func clone(a Assistant) Assistant {
	out := a
	out.Tools = make([]Tool, len(a.Tools))
	for i, t := range a.Tools {
		t.Parameters = t.Parameters.clone()
		out.Tools[i] = t
	}
	if a.RequiredFields != nil {
		out.RequiredFields = make(map[string][]FieldSelection, len(a.RequiredFields))
		for k, v := range a.RequiredFields {
			out.RequiredFields[k] = append([]FieldSelection(nil), v...)
		}
	}
	return out
}
