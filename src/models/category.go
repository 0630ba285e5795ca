package models

// Category labels transactions. A NULL UserID marks a global system category;
// system categories carry a stable Key, are immutable, and cannot be deleted.
// FlowType is fixed at creation for every category.
type Category struct {
	ID        int64    `json:"id"`
	UserID    *int64   `json:"user_id,omitempty"` // nil => system/global
	Name      string   `json:"name"`
	FlowType  FlowType `json:"flow_type"`
	Key       *string  `json:"key,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// IsSystem reports whether the category is a seeded global one.
func (c *Category) IsSystem() bool {
	return c.UserID == nil
}
