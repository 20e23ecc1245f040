package render

// Chain is an explicit context resolution chain: an ordered list of
// key/value layers where the earliest layer is the closest scope.
// Lookup resolves page > section > site, closest wins.
type Chain struct {
	layers []map[string]any
}

// NewChain builds a chain from closest to farthest layer. Nil layers
// are allowed and skipped.
func NewChain(closestFirst ...map[string]any) Chain {
	layers := make([]map[string]any, 0, len(closestFirst))
	for _, l := range closestFirst {
		if l != nil {
			layers = append(layers, l)
		}
	}
	return Chain{layers: layers}
}

// Lookup returns the value for key from the closest layer that has it.
func (c Chain) Lookup(key string) (any, bool) {
	for _, layer := range c.layers {
		if v, ok := layer[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Flatten merges all layers into one map, closest layer winning on
// key collisions.
func (c Chain) Flatten() map[string]any {
	out := map[string]any{}
	for i := len(c.layers) - 1; i >= 0; i-- {
		for k, v := range c.layers[i] {
			out[k] = v
		}
	}
	return out
}
