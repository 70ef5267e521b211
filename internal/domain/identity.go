// Package domain contains core domain types for the training desk.
package domain

import "strings"

// Identity is the caller's identity record. An empty field means absent.
// Division is only ever set once Name and ID have been verified against the
// employee directory.
type Identity struct {
	Name     string `json:"name"`
	ID       string `json:"id"`
	Division string `json:"division"`
}

// Normalize trims whitespace from every field.
func (i Identity) Normalize() Identity {
	return Identity{
		Name:     strings.TrimSpace(i.Name),
		ID:       strings.TrimSpace(i.ID),
		Division: strings.TrimSpace(i.Division),
	}
}

// Unverified returns a copy with the division dropped.
func (i Identity) Unverified() Identity {
	i.Division = ""
	return i
}

// HasName reports whether a name is known.
func (i Identity) HasName() bool { return i.Name != "" }

// HasID reports whether an employee id is known.
func (i Identity) HasID() bool { return i.ID != "" }

// Verified reports whether the record carries a division, which only happens
// after a successful directory match.
func (i Identity) Verified() bool {
	return i.HasName() && i.HasID() && i.Division != ""
}

// IdentityExtraction is the oracle's reading of a single pre-authentication
// message. Empty fields mean the message did not mention them.
type IdentityExtraction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Empty reports whether nothing was extracted.
func (e IdentityExtraction) Empty() bool {
	return strings.TrimSpace(e.ID) == "" && strings.TrimSpace(e.Name) == ""
}

// Merge overwrites the record's name and id with any non-empty extracted
// values, which lets a caller correct a previously given value.
func (i Identity) Merge(e IdentityExtraction) Identity {
	if name := strings.TrimSpace(e.Name); name != "" {
		i.Name = name
	}
	if id := strings.TrimSpace(e.ID); id != "" {
		i.ID = id
	}
	return i
}
