package domain

// Signals are the request attributes tenant identification looks at.
type Signals struct {
	Path          string
	Authorization string
	APIKey        string
	TenantHeader  string
	Host          string
	Origin        string
}

type Outcome int

const (
	// OutcomeUnresolved means no strategy matched. Callers decide whether the
	// route may run against the public partition.
	OutcomeUnresolved Outcome = iota
	OutcomeResolved
	// OutcomePublic is returned for allow-listed routes before any strategy runs.
	OutcomePublic
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomePublic:
		return "public"
	default:
		return "unresolved"
	}
}

type Resolution struct {
	Outcome  Outcome
	Tenant   Tenant
	Strategy string
}

func Resolved(t Tenant, strategy string) Resolution {
	return Resolution{Outcome: OutcomeResolved, Tenant: t, Strategy: strategy}
}

func Unresolved() Resolution {
	return Resolution{Outcome: OutcomeUnresolved}
}

func PublicRoute() Resolution {
	return Resolution{Outcome: OutcomePublic}
}

func (r Resolution) IsResolved() bool {
	return r.Outcome == OutcomeResolved
}

// Partition is the partition a request with this resolution binds to.
func (r Resolution) Partition() Partition {
	if r.IsResolved() {
		return r.Tenant.Partition
	}
	return PublicPartition()
}
