package nn

import (
	"fmt"
	"strings"
)

// Scope is a hierarchical naming path passed explicitly through construction.
//
//	root := nn.NewScope("res_net")
//	conv := root.Child("group_2").Indexed("block", 1).Child("conv_1")
//	conv.Name("weight") // "res_net/group_2/block_1/conv_1/weight"
type Scope struct {
	path string
}

// NewScope creates a root scope.
func NewScope(root string) Scope {
	return Scope{path: root}
}

// Child returns a nested scope.
func (s Scope) Child(name string) Scope {
	if s.path == "" {
		return Scope{path: name}
	}
	return Scope{path: s.path + "/" + name}
}

// Indexed returns a nested scope named prefix_index.
func (s Scope) Indexed(prefix string, index int) Scope {
	return s.Child(fmt.Sprintf("%s_%d", prefix, index))
}

// Name returns the full path of a leaf inside this scope.
func (s Scope) Name(leaf string) string {
	return s.Child(leaf).path
}

// String returns the scope path.
func (s Scope) String() string {
	return s.path
}

// Contains reports whether name lives inside this scope.
func (s Scope) Contains(name string) bool {
	return strings.HasPrefix(name, s.path+"/")
}
