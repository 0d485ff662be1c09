package shas

import (
	"fmt"
	"path/filepath"
)

// AmudFileName is the per-amud file name, shared by the local cache and the
// remote stores.
func AmudFileName(masechta string, a Address) string {
	return fmt.Sprintf("%s_Daf%d_Amud%s.pdf", masechta, a.Leaf, a.Side)
}

// DafFileName is the output of merging both amudim of a daf.
func DafFileName(masechta string, leaf int) string {
	return fmt.Sprintf("%s_Daf%d.pdf", masechta, leaf)
}

// FullFileName is the output of merging a whole selection.
func FullFileName(masechta, descriptor string) string {
	return fmt.Sprintf("%s_%s_Full.pdf", masechta, descriptor)
}

// MasechtaDir is the per-masechta directory under the output root.
func MasechtaDir(root, masechta string) string { return filepath.Join(root, masechta) }
