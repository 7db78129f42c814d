package graph

// Default and maximum traversal bounds for neighborhood extraction.
const (
	DefaultMaxHops  = 1
	MaxAllowedHops  = 4
	DefaultMaxNodes = 200
	MaxAllowedNodes = 2000
)

// Bounds limits a neighborhood traversal so a densely linked world cannot
// blow up the context handed to the planner.
type Bounds struct {
	// MaxHops is the graph distance from the seeds.
	MaxHops int

	// MaxNodes caps the number of nodes collected.
	MaxNodes int
}

// Normalize applies defaults to zero fields and clamps to the maximums.
func (b *Bounds) Normalize() {
	if b.MaxHops <= 0 {
		b.MaxHops = DefaultMaxHops
	}
	if b.MaxHops > MaxAllowedHops {
		b.MaxHops = MaxAllowedHops
	}
	if b.MaxNodes <= 0 {
		b.MaxNodes = DefaultMaxNodes
	}
	if b.MaxNodes > MaxAllowedNodes {
		b.MaxNodes = MaxAllowedNodes
	}
}

// boundsChecker tracks traversal progress against Bounds.
type boundsChecker struct {
	bounds       Bounds
	nodesVisited int
}

func newBoundsChecker(bounds Bounds) *boundsChecker {
	bounds.Normalize()
	return &boundsChecker{bounds: bounds}
}

// canVisitNode reports whether another node fits within MaxNodes.
func (b *boundsChecker) canVisitNode() bool {
	return b.nodesVisited < b.bounds.MaxNodes
}

func (b *boundsChecker) recordNode() {
	b.nodesVisited++
}
