package models

import "strings"

// Address identifies a party on the asset book: a holder, the vault itself, a yield module,
// a forwarder, a beneficiary or the admin.
type Address string

// ZeroAddress is the null identity. No role may ever be assigned to it.
const ZeroAddress Address = ""

// NewAddress normalizes a raw identity string.
func NewAddress(raw string) Address {
	return Address(strings.ToLower(strings.TrimSpace(raw)))
}

// IsZero reports whether a is the null identity.
func (a Address) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

func (a Address) String() string {
	return string(a)
}
