package segment

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

const turnInfix = "-turn-"

// Generator hands out turn IDs. The counter is shared across sessions so IDs
// stay unique and monotonic for the life of the process.
type Generator struct {
	counter uint64
}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) Next(sessionId string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s%s%d", sessionId, turnInfix, n)
}

// Count returns how many IDs have been issued.
func (g *Generator) Count() uint64 {
	return atomic.LoadUint64(&g.counter)
}

// Sequence splits a turn ID into its session and counter parts.
func Sequence(turnId string) (sessionId string, n uint64, ok bool) {
	i := strings.LastIndex(turnId, turnInfix)
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.ParseUint(turnId[i+len(turnInfix):], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return turnId[:i], n, true
}
