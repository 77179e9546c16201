package optimize

// Tier is the approval policy of a queue item. It is decided once, at
// enqueue, and stored in the item's severity column.
type Tier string

const (
	// Auto items execute inside the enqueue call.
	Auto Tier = "auto"
	// Suggestion items wait for approval; approving runs a reversible or
	// low-impact change.
	Suggestion Tier = "suggestion"
	// Destructive items wait for approval; approving runs an irreversible
	// change.
	Destructive Tier = "destructive"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case Auto, Suggestion, Destructive:
		return true
	}
	return false
}

// NeedsApproval reports whether items of this tier wait in pending.
func (t Tier) NeedsApproval() bool { return t != Auto }
