package handle

import "strings"

// RootContainer is the container id of top-level operators.
const RootContainer = "/"

// EdgeID composes the stable identifier of an edge from its endpoints.
func EdgeID(source, sourceHandle, target, targetHandle string) string {
	return source + "." + sourceHandle + "->" + target + "." + targetHandle
}

// ContainerOf returns the container path of a slash-delimited operator id:
// everything up to the last '/', or RootContainer for top-level ids.
func ContainerOf(id string) string {
	idx := strings.LastIndex(id, "/")
	if idx <= 0 {
		return RootContainer
	}
	return id[:idx]
}

// IsDirectChild reports whether id is an immediate child of the container
// path, not a deeper descendant.
func IsDirectChild(container, id string) bool {
	return ContainerOf(id) == container
}
