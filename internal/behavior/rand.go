package behavior

import "math/rand/v2"

// GlobalRand draws from the goroutine-safe top-level math/rand/v2 source.
type GlobalRand struct{}

func (GlobalRand) Float64() float64 { return rand.Float64() }
func (GlobalRand) IntN(n int) int    { return rand.IntN(n) }
