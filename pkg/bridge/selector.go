package bridge

import (
	"strings"

	"usdc-bridge/pkg/types"
)

// RoutePredicate reports whether a build option is acceptable
type RoutePredicate func(types.BuildOption) bool

// AvoidBridge accepts options whose bridge name does not contain name (case-insensitive)
func AvoidBridge(name string) RoutePredicate {
	name = strings.ToLower(name)
	return func(opt types.BuildOption) bool {
		return !strings.Contains(strings.ToLower(opt.Route.BridgeName()), name)
	}
}

// DefaultRoutePredicate avoids Across routes
var DefaultRoutePredicate = AvoidBridge("across")

// SelectRoute returns the index of the option to execute: the only option, else the
// first one accepted by prefer, else the first. It returns -1 for no options.
func SelectRoute(options []types.BuildOption, prefer RoutePredicate) int {
	if len(options) == 0 {
		return -1
	}
	if len(options) == 1 || prefer == nil {
		return 0
	}
	for i, opt := range options {
		if prefer(opt) {
			return i
		}
	}
	return 0
}
