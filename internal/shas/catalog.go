package shas

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// CorpusItem is one masechta: its remote identifier and physical page count.
type CorpusItem struct {
	Name       string `toml:"name" json:"name"`
	RemoteID   string `toml:"remote_id" json:"remote_id"`
	TotalPages int    `toml:"total_pages" json:"total_pages"`
}

// MaxLeaf is the last daf that holds at least one page.
func (c CorpusItem) MaxLeaf() int { return FirstLeaf + (c.TotalPages-1)/2 }

// HasExtraPage reports whether the last daf carries only amud aleph.
func (c CorpusItem) HasExtraPage() bool { return c.TotalPages%2 == 1 }

// Leaves lists every selectable daf.
func (c CorpusItem) Leaves() []int {
	out := make([]int, 0, c.MaxLeaf()-FirstLeaf+1)
	for l := FirstLeaf; l <= c.MaxLeaf(); l++ {
		out = append(out, l)
	}
	return out
}

// Addresses lists every selectable amud in page order.
func (c CorpusItem) Addresses() []Address {
	out := make([]Address, 0, c.TotalPages)
	for p := 1; p <= c.TotalPages; p++ {
		a, _ := ToAddress(p)
		out = append(out, a)
	}
	return out
}

// Catalog is a read-only registry of masechtos, kept in canonical order.
type Catalog struct {
	items []CorpusItem
	index map[string]int
}

// NewCatalog validates items and builds a Catalog.
func NewCatalog(items []CorpusItem) (*Catalog, error) {
	c := &Catalog{items: make([]CorpusItem, 0, len(items)), index: make(map[string]int, len(items))}
	for _, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			return nil, fmt.Errorf("catalog: entry without name")
		}
		if it.TotalPages <= 0 {
			return nil, fmt.Errorf("catalog: %s: total_pages must be positive, got %d", it.Name, it.TotalPages)
		}
		if _, dup := c.index[it.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate entry %s", it.Name)
		}
		c.index[it.Name] = len(c.items)
		c.items = append(c.items, it)
	}
	return c, nil
}

// Lookup returns the named masechta. Exact matches win over case-insensitive ones.
func (c *Catalog) Lookup(name string) (CorpusItem, error) {
	name = strings.TrimSpace(name)
	if i, ok := c.index[name]; ok {
		return c.items[i], nil
	}
	for _, it := range c.items {
		if strings.EqualFold(it.Name, name) {
			return it, nil
		}
	}
	return CorpusItem{}, invalid("masechta", name, ErrUnknownCorpusItem)
}

// Items returns a copy of all entries in catalog order.
func (c *Catalog) Items() []CorpusItem {
	out := make([]CorpusItem, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.items) }

type catalogFile struct {
	Masechta []CorpusItem `toml:"masechta"`
}

// LoadCatalogFile reads a TOML catalog of the form
//
//	[[masechta]]
//	name = "Brachos"
//	remote_id = "36083"
//	total_pages = 125
func LoadCatalogFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := toml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(f.Masechta) == 0 {
		return nil, fmt.Errorf("catalog %s has no [[masechta]] entries", path)
	}
	return NewCatalog(f.Masechta)
}

// LoadCatalog returns the catalog at path, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	return LoadCatalogFile(path)
}
