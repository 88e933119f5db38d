package source

// Repo carries the repository identity fields a provider includes in
// its webhook payloads. Plain value data, no behavior beyond what the
// archive URL construction needs.
type Repo struct {
	ID       string
	Name     string
	FullName string
	WebURL   string
	APIURL   string
}

// Event is the canonical form of a provider webhook payload. The union
// is closed: a payload normalizes to a PushEvent, a DeleteEvent, or an
// error.
type Event interface {
	event()
}

// PushEvent reports new commits on a ref. ArchiveURL points at the
// provider's downloadable zip for the pushed ref, derived from the
// repository identity in the payload.
type PushEvent struct {
	Provider    Provider
	Ref         RefDescriptor
	Repo        Repo
	Before      string
	After       string
	CheckoutSHA string
	ArchiveURL  string
}

// DeleteEvent reports removal of a ref.
type DeleteEvent struct {
	Provider Provider
	Ref      RefDescriptor
	Repo     Repo
}

func (PushEvent) event()   {}
func (DeleteEvent) event() {}
