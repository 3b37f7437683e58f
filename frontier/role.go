// Package frontier decides which discovered links get crawled: it normalizes,
// classifies, deduplicates and budgets links, and routes fetched pages to the
// listing or detail handler.
package frontier

// Role is the part a URL plays in the crawl.
type Role int

const (
	RoleUnclassified Role = iota
	RoleListing
	RoleDetail
)

// String returns the handler label attached to enqueued requests.
func (r Role) String() string {
	switch r {
	case RoleListing:
		return "listing"
	case RoleDetail:
		return "detail"
	default:
		return "unclassified"
	}
}

// ParseRole maps a handler label back to its Role.
func ParseRole(label string) Role {
	switch label {
	case "listing":
		return RoleListing
	case "detail":
		return RoleDetail
	default:
		return RoleUnclassified
	}
}

// Decision is the outcome of offering one link to the frontier.
type Decision int

const (
	Enqueued Decision = iota
	DroppedInvalid
	DroppedUnclassified
	DroppedDuplicate
	DroppedBudget
	DroppedEngine
)

func (d Decision) String() string {
	switch d {
	case Enqueued:
		return "enqueued"
	case DroppedInvalid:
		return "invalid"
	case DroppedUnclassified:
		return "unclassified"
	case DroppedDuplicate:
		return "duplicate"
	case DroppedBudget:
		return "budget"
	case DroppedEngine:
		return "engine"
	default:
		return "unknown"
	}
}
