package shas

import (
	"fmt"
	"strconv"
	"strings"
)

// FirstLeaf is the first daf of every masechta; daf 1 does not exist.
const FirstLeaf = 2

// Side is one face of a daf.
type Side int

const (
	Front Side = iota // amud aleph, odd physical pages
	Back              // amud beis, even physical pages
)

// String returns the single-letter amud code used in file names ("a" or "b").
func (s Side) String() string {
	if s == Back {
		return "b"
	}
	return "a"
}

// ParseSide accepts "a"/"b" (case-insensitive).
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a":
		return Front, nil
	case "b":
		return Back, nil
	}
	return Front, invalid("amud", s, ErrInvalidAddress)
}

// Address is a (daf, amud) pair.
type Address struct {
	Leaf int
	Side Side
}

func (a Address) String() string { return fmt.Sprintf("%d%s", a.Leaf, a.Side) }

// Before reports whether a precedes b in page order.
func (a Address) Before(b Address) bool {
	if a.Leaf != b.Leaf {
		return a.Leaf < b.Leaf
	}
	return a.Side < b.Side
}

// Page returns the physical page number of a.
func (a Address) Page() int { return ToPage(a.Leaf, a.Side) }

// ToAddress maps a 1-based physical page to its daf and amud.
func ToAddress(page int) (Address, error) {
	if page < 1 {
		return Address{}, invalid("page", strconv.Itoa(page), ErrInvalidPage)
	}
	side := Front
	if page%2 == 0 {
		side = Back
	}
	return Address{Leaf: FirstLeaf + (page-1)/2, Side: side}, nil
}

// ToPage is the inverse of ToAddress.
func ToPage(leaf int, side Side) int {
	p := 2*(leaf-FirstLeaf) + 1
	if side == Back {
		p++
	}
	return p
}

// ParseAddress parses "10b" style addresses. The leaf is not bounds-checked
// here; out-of-range pages are dropped later by the resolver.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Address{}, invalid("amud", s, ErrInvalidAddress)
	}
	leaf, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return Address{}, invalid("amud", s, ErrInvalidAddress)
	}
	side, err := ParseSide(s[len(s)-1:])
	if err != nil {
		return Address{}, invalid("amud", s, ErrInvalidAddress)
	}
	return Address{Leaf: leaf, Side: side}, nil
}

// ParseLeaf parses a bare daf number.
func ParseLeaf(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, invalid("daf", s, ErrInvalidAddress)
	}
	return n, nil
}
