package runtime

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DynamicPrefix marks a placeholder path as a request for generated data.
const DynamicPrefix = "$dynamic."

// DataGenerator produces fresh values for `{{$dynamic.<name>}}` placeholders.
// Every call yields an independent value.
type DataGenerator interface {
	Generate(name string) (any, bool)
}

type GeneratorFunc func() any

// DynamicGenerator is a registry of named generators. It is safe for
// concurrent use by all flows of a run.
type DynamicGenerator struct {
	mu         sync.RWMutex
	generators map[string]GeneratorFunc
}

func NewDynamicGenerator() *DynamicGenerator {
	g := &DynamicGenerator{generators: make(map[string]GeneratorFunc)}

	g.Register("uuid", func() any { return uuid.NewString() })
	g.Register("id", func() any { return shortID() })
	g.Register("timestamp", func() any { return time.Now().Unix() })
	g.Register("timestampMs", func() any { return time.Now().UnixMilli() })
	g.Register("isoTimestamp", func() any { return time.Now().UTC().Format(time.RFC3339) })
	g.Register("date", func() any { return time.Now().UTC().Format(time.DateOnly) })
	g.Register("int", func() any { return rand.Intn(1_000_000) })
	g.Register("string", func() any { return randomLetters(10) })
	g.Register("username", func() any { return "user_" + randomLetters(8) })
	g.Register("email", func() any { return fmt.Sprintf("qa+%s@example.com", shortID()) })
	g.Register("phone", func() any { return fmt.Sprintf("+1555%07d", rand.Intn(10_000_000)) })

	return g
}

// Register adds or replaces a generator.
func (g *DynamicGenerator) Register(name string, fn GeneratorFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generators[name] = fn
}

func (g *DynamicGenerator) Generate(name string) (any, bool) {
	g.mu.RLock()
	fn, ok := g.generators[name]
	g.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return fn(), true
}

// Names lists the registered generators.
func (g *DynamicGenerator) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.generators))
	for name := range g.generators {
		names = append(names, name)
	}
	return names
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

const letters = "abcdefghijklmnopqrstuvwxyz"

func randomLetters(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
