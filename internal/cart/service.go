package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/shopstate/internal/catalog"
	"github.com/abgdnv/shopstate/internal/observe"
	"github.com/abgdnv/shopstate/pkg/kvstore"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Namespace is the typed-store namespace owned by the cart aggregate.
const Namespace = "cart"

// itemsKey is the single key holding the full persisted item sequence.
const itemsKey = "items"

// ErrValidation is returned when a mutation is rejected before touching state.
var ErrValidation = errors.New("cart validation failed")

// addItemInput carries the validated parameters of AddItem.
type addItemInput struct {
	ProductID string `validate:"required"`
	Quantity  int    `validate:"required,min=1"`
}

// Service implements the cart aggregate over the typed store. Every mutation
// reads the full item sequence, applies the change and writes the sequence
// back as one persisted unit.
//
// Mutations are serialized through the aggregate's mutex (per-cart mutation
// queue), so concurrent callers sharing one Service cannot interleave the
// read-modify-write and lose an update. Coordination across processes is out
// of scope: two Service instances over the same medium remain last-write-wins.
type Service struct {
	store    *kvstore.Store
	validate *validator.Validate
	logger   *slog.Logger
	notifier *observe.Notifier[Cart]

	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

// NewService creates a cart aggregate over the typed store.
func NewService(store *kvstore.Store, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		validate: validator.New(),
		logger:   logger.With("component", "cart"),
		notifier: observe.NewNotifier[Cart](),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Subscribe registers a consumer notified with the recomputed read model
// after every successful mutation.
func (s *Service) Subscribe(fn func(Cart)) (cancel func()) {
	return s.notifier.Subscribe(fn)
}

// AddItem adds a product to the cart. A quantity below 1 is rejected with
// ErrValidation. If a line for the same product ID already exists its
// quantity grows by the given amount and its product snapshot is left
// unchanged (first-seen snapshot wins); otherwise a new line is appended.
func (s *Service) AddItem(ctx context.Context, product catalog.Product, quantity int) (*Item, error) {
	input := addItemInput{ProductID: product.ID, Quantity: quantity}
	if err := s.validate.Struct(input); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, validationErrors)
		}
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	s.mu.Lock()
	items, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var result *Item
	for i := range items {
		if items[i].Product.ID == product.ID {
			items[i].Quantity += quantity
			result = &items[i]
			break
		}
	}
	if result == nil {
		items = append(items, Item{
			ID:       s.newID(),
			Product:  product,
			Quantity: quantity,
			AddedAt:  s.now(),
		})
		result = &items[len(items)-1]
	}
	if err := s.persist(ctx, items); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	added := *result
	snapshot := ComputeTotals(items)
	s.mu.Unlock()
	s.notifier.Publish(snapshot)
	return &added, nil
}

// UpdateQuantity replaces a line's quantity. A quantity of zero or below
// removes the line. An unknown item ID is a no-op, not an error.
func (s *Service) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	s.mu.Lock()
	items, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	idx := -1
	for i := range items {
		if items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	if quantity <= 0 {
		items = append(items[:idx], items[idx+1:]...)
	} else {
		items[idx].Quantity = quantity
	}
	if err := s.persist(ctx, items); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := ComputeTotals(items)
	s.mu.Unlock()
	s.notifier.Publish(snapshot)
	return nil
}

// RemoveItem removes a line if present; a no-op otherwise.
func (s *Service) RemoveItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	items, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	idx := -1
	for i := range items {
		if items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	items = append(items[:idx], items[idx+1:]...)
	if err := s.persist(ctx, items); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := ComputeTotals(items)
	s.mu.Unlock()
	s.notifier.Publish(snapshot)
	return nil
}

// Clear deletes the entire persisted cart in one operation.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	if err := s.store.Remove(ctx, Namespace, itemsKey); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	s.mu.Unlock()
	s.notifier.Publish(ComputeTotals(nil))
	return nil
}

// Items returns the persisted line sequence in insertion order, or an empty
// sequence when the cart is absent. A corrupt persisted cart self-heals by
// clearing the entry; it is never surfaced as fatal.
func (s *Service) Items(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx)
}

// Current returns the derived read model for the persisted cart.
func (s *Service) Current(ctx context.Context) (Cart, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return Cart{}, err
	}
	return ComputeTotals(items), nil
}

// load reads the persisted item sequence. Absence yields an empty slice; a
// decode failure clears the corrupt entry and also yields an empty slice.
// Only a medium read failure propagates. Caller holds s.mu.
func (s *Service) load(ctx context.Context) ([]Item, error) {
	value, err := s.store.Get(ctx, Namespace, itemsKey, kvstore.KindRecord)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return []Item{}, nil
		}
		if s.heal(ctx, err) {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	var items []Item
	if err := value.Decode(&items); err != nil {
		if s.heal(ctx, err) {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// heal clears the persisted cart when err is a decode failure.
// Reports whether it handled the error.
func (s *Service) heal(ctx context.Context, err error) bool {
	var decodeErr *kvstore.DecodeError
	if !errors.As(err, &decodeErr) {
		return false
	}
	s.logger.WarnContext(ctx, "Clearing corrupt persisted cart", "error", err)
	if err := s.store.Remove(ctx, Namespace, itemsKey); err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear corrupt persisted cart", "error", err)
	}
	return true
}

// persist writes the full item sequence back as one unit. The typed store is
// write-through, so a nil return means the mutation is durable.
func (s *Service) persist(ctx context.Context, items []Item) error {
	value, err := kvstore.RecordValue(items)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := s.store.Set(ctx, Namespace, itemsKey, value); err != nil {
		return fmt.Errorf("failed to persist cart: %w", err)
	}
	return nil
}
