package types

// Edge is a labeled, undirected connection between two nodes. At most one
// edge exists per unordered pair of node names; Source and Target record the
// orientation of the most recent write.
type Edge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

// Other returns the endpoint of e opposite to name, or "" when name is not an
// endpoint of e.
func (e Edge) Other(name string) string {
	switch name {
	case e.Source:
		return e.Target
	case e.Target:
		return e.Source
	}
	return ""
}

// PairKey returns the order-independent key of the pair (a, b).
func PairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}
