package dispatcher

import (
	"sync"

	"github.com/tinyland-inc/sellerbot/pkg/marketplace"
)

// Kind is what an edit flow changes.
type Kind int

const (
	KindStock Kind = iota
	KindPrice
)

func (k Kind) String() string {
	if k == KindPrice {
		return "price"
	}
	return "stock"
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingProduct
	PhaseAwaitingValue
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingProduct:
		return "awaiting_product"
	case PhaseAwaitingValue:
		return "awaiting_value"
	default:
		return "idle"
	}
}

// State is one user's position in an edit flow. Build it with Idle,
// AwaitingProduct or AwaitingValue so Products and Selected only carry data in
// the phase that uses them.
type State struct {
	phase    Phase
	kind     Kind
	products []marketplace.Product
	selected marketplace.Product
}

func Idle() State { return State{} }

// AwaitingProduct holds the numbered listing the user picks from.
func AwaitingProduct(kind Kind, products []marketplace.Product) State {
	return State{phase: PhaseAwaitingProduct, kind: kind, products: products}
}

func AwaitingValue(kind Kind, product marketplace.Product) State {
	return State{phase: PhaseAwaitingValue, kind: kind, selected: product}
}

func (s State) Phase() Phase { return s.phase }
func (s State) Kind() Kind { return s.kind }
func (s State) Products() []marketplace.Product { return s.products }
func (s State) Selected() marketplace.Product { return s.selected }
func (s State) IsIdle() bool { return s.phase == PhaseIdle }

type userSlot struct {
	mu    sync.Mutex
	state State
}

// StateStore keeps per-user flow state. The store lock only guards the slot
// map; handling holds the user's own lock, so different users never wait on
// each other.
type StateStore struct {
	mu    sync.Mutex
	slots map[int64]*userSlot
}

func NewStateStore() *StateStore {
	return &StateStore{slots: make(map[int64]*userSlot)}
}

func (s *StateStore) slot(userID int64) *userSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[userID]
	if !ok {
		sl = &userSlot{}
		s.slots[userID] = sl
	}
	return sl
}

// Acquire locks the user's slot until Release is called on the returned
// handle.
func (s *StateStore) Acquire(userID int64) *Handle {
	sl := s.slot(userID)
	sl.mu.Lock()
	return &Handle{slot: sl}
}

// Get returns a snapshot of the user's state.
func (s *StateStore) Get(userID int64) State {
	h := s.Acquire(userID)
	defer h.Release()
	return h.State()
}

// Handle is exclusive access to one user's state.
type Handle struct {
	slot *userSlot
}

func (h *Handle) State() State { return h.slot.state }
func (h *Handle) Set(st State) { h.slot.state = st }
func (h *Handle) Reset() { h.slot.state = Idle() }
func (h *Handle) Release() { h.slot.mu.Unlock() }
