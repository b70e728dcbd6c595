package valueobjects

// Identity is an opaque account reference on the external ledger.
// The zero value is the anonymous sentinel and is never a valid
// participant or a valid configured ledger reference.
type Identity string

const Anonymous Identity = ""

func (i Identity) IsAnonymous() bool {
	return i == Anonymous
}

func (i Identity) String() string {
	return string(i)
}
