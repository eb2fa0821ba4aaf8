package store

// Item is a pre-serialized value kept in the durable key-value table.
type Item struct {
	Key       string
	Value     string
	UpdatedTs int64
}

// FindItem specifies the conditions for finding an item.
type FindItem struct {
	Key string
}

// DeleteItem specifies the keys to remove. Missing keys are ignored.
type DeleteItem struct {
	Keys []string
}
