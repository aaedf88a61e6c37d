package logits

import "math"

var negInf = float32(math.Inf(-1))

func penalize(v, penalty float32) float32 {
	if v > 0 {
		return v / penalty
	}
	return v * penalty
}

// Penalize applies a repetition-penalty style adjustment to each distinct
// id: positive logits are divided by penalty, negative ones multiplied.
// A penalty above 1 pushes the ids down; below 1 pulls them up.
func Penalize(logits []float32, ids []int, penalty float32) {
	if penalty <= 0 || penalty == 1 || len(ids) == 0 {
		return
	}
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(logits) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		logits[id] = penalize(logits[id], penalty)
	}
}

// Keep masks every logit outside ids. It reports false and leaves logits
// untouched when ids holds no valid id.
func Keep(logits []float32, ids []int) bool {
	allowed := make([]bool, len(logits))
	found := false
	for _, id := range ids {
		if id >= 0 && id < len(logits) {
			allowed[id] = true
			found = true
		}
	}
	if !found {
		return false
	}
	for i := range logits {
		if !allowed[i] {
			logits[i] = negInf
		}
	}
	return true
}

// Exclude masks every logit in ids. It reports false and leaves logits
// untouched when ids is empty or masking it would leave no finite logit.
func Exclude(logits []float32, ids []int) bool {
	if len(ids) == 0 {
		return false
	}
	banned := make([]bool, len(logits))
	for _, id := range ids {
		if id >= 0 && id < len(logits) {
			banned[id] = true
		}
	}
	remaining := false
	for i, v := range logits {
		if !banned[i] && !math.IsInf(float64(v), -1) {
			remaining = true
			break
		}
	}
	if !remaining {
		return false
	}
	for i := range logits {
		if banned[i] {
			logits[i] = negInf
		}
	}
	return true
}
