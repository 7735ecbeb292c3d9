package flowsync

// Resource kinds recorded in the inventory and used in error messages.
const (
	KindQueue         = "queue"
	KindPrompt        = "prompt"
	KindHours         = "hours-of-operation"
	KindFunction      = "function"
	KindFlow          = "flow"
	KindModule        = "flow-module"
	KindAssistant     = "assistant"
	KindBotAlias      = "bot-alias"
	KindFlowAttribute = "flow-attribute"
	KindPlaceholder   = "placeholder"
)

// InventoryReader is the read-only view of an Inventory handed to pipeline
// stages.
type InventoryReader interface {
	Lookup(name string) (string, bool)
	Names() []string
	Len() int
}

type inventoryEntry struct {
	value string
	kind  string
}

// Inventory is an insertion-ordered mapping from resource name to resolved
// identifier (ARN, id, or alias path). Every entry remembers the resource
// kind that contributed it so cross-kind collisions can be detected.
type Inventory struct {
	order   []string
	entries map[string]inventoryEntry
}

// NewInventory returns an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{entries: make(map[string]inventoryEntry)}
}

// Add registers name → value for kind. Re-registering the same entry is a
// no-op. A name already owned by a different kind, or by the same kind with
// a different value, returns a CollisionError.
func (inv *Inventory) Add(kind, name, value string) error {
	if existing, ok := inv.entries[name]; ok {
		switch {
		case existing.kind != kind:
			return &CollisionError{Name: name, Kinds: []string{existing.kind, kind}}
		case existing.value != value:
			return &CollisionError{Name: name, Kinds: []string{kind}, Values: []string{existing.value, value}}
		}
		return nil
	}
	inv.order = append(inv.order, name)
	inv.entries[name] = inventoryEntry{value: value, kind: kind}
	return nil
}

// Lookup returns the identifier registered for name.
func (inv *Inventory) Lookup(name string) (string, bool) {
	e, ok := inv.entries[name]
	return e.value, ok
}

// KindOf returns the kind that registered name.
func (inv *Inventory) KindOf(name string) (string, bool) {
	e, ok := inv.entries[name]
	return e.kind, ok
}

// Names returns the registered names in insertion order.
func (inv *Inventory) Names() []string {
	out := make([]string, len(inv.order))
	copy(out, inv.order)
	return out
}

// Len returns the number of registered names.
func (inv *Inventory) Len() int {
	return len(inv.order)
}

// CountByKind returns the number of entries per kind.
func (inv *Inventory) CountByKind() map[string]int {
	counts := make(map[string]int)
	for _, name := range inv.order {
		counts[inv.entries[name].kind]++
	}
	return counts
}

// Reverse returns an identifier → name index for the given kind. When two
// names of the kind share an identifier (a function seen by its full and
// trimmed name) the first registered name wins.
func (inv *Inventory) Reverse(kind string) map[string]string {
	out := make(map[string]string)
	for _, name := range inv.order {
		e := inv.entries[name]
		if e.kind != kind {
			continue
		}
		if _, seen := out[e.value]; !seen {
			out[e.value] = name
		}
	}
	return out
}

// Kinds returns the distinct kinds present, sorted.
func (inv *Inventory) Kinds() []string {
	return sortedKeys(inv.CountByKind())
}
