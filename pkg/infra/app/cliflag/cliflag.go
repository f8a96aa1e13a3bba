// Package cliflag groups pflag flag sets by section so that help output
// and config binding stay organized per concern.
package cliflag

import "github.com/spf13/pflag"

// NamedFlagSets stores named flag sets in the order they were added.
type NamedFlagSets struct {
	// Order is the order in which the flag sets were created.
	Order []string
	// FlagSets maps a section name to its flag set.
	FlagSets map[string]*pflag.FlagSet
}

// FlagSet returns the flag set with the given name, creating it on first
// use and recording its position in Order.
func (nfs *NamedFlagSets) FlagSet(name string) *pflag.FlagSet {
	if nfs.FlagSets == nil {
		nfs.FlagSets = map[string]*pflag.FlagSet{}
	}
	if _, ok := nfs.FlagSets[name]; !ok {
		nfs.FlagSets[name] = pflag.NewFlagSet(name, pflag.ExitOnError)
		nfs.Order = append(nfs.Order, name)
	}
	return nfs.FlagSets[name]
}
