package selector

import "slices"

// OneOf restricts generation to one of items. At each step it keeps the
// items whose extension encoding starts with the tokens sampled so far and
// returns the next id of each survivor.
func OneOf(items ...string) Selector {
	items = slices.Clone(items)
	return Func(func(step Step) ([]int, error) {
		var out []int
		seen := make(map[int]struct{})
		for _, item := range items {
			ext, err := Extension(step.Codec, step.Prior, item)
			if err != nil {
				return nil, err
			}
			if len(ext) <= len(step.Tokens) || !slices.Equal(ext[:len(step.Tokens)], step.Tokens) {
				continue
			}
			next := ext[len(step.Tokens)]
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			out = append(out, next)
		}
		return out, nil
	})
}
