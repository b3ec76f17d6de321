package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kjstillabower/weather-display-service/internal/observability"
	"github.com/kjstillabower/weather-display-service/internal/validation"
)

// Store keys.
const (
	KeyDefaultLocation = "defaultLocation"
	KeyLocations       = "locations"
)

// DefaultLocation and DefaultLocations are served until the user saves their own.
const DefaultLocation = "Bangalore"

var DefaultLocations = []string{"Bangalore", "London"}

var (
	ErrInvalidLocation   = errors.New("invalid location")
	ErrDuplicateLocation = errors.New("location already saved")
	ErrLocationNotSaved  = errors.New("location not saved")
	ErrDeleteDefault     = errors.New("cannot delete the default location")
)

// Manager applies the saved-location rules on top of a Store.
// Read-modify-write sequences are serialized within the process.
type Manager struct {
	store Store
	rules validation.Rules
	mu    sync.Mutex
}

func NewManager(store Store, rules validation.Rules) *Manager {
	return &Manager{store: store, rules: rules}
}

// List returns the saved locations in insertion order.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	locs, err := m.list(ctx)
	observability.RecordSettingsOperation("list", err)
	return locs, err
}

func (m *Manager) list(ctx context.Context) ([]string, error) {
	raw, err := m.store.Get(ctx, KeyLocations)
	if errors.Is(err, ErrNotFound) {
		return append([]string(nil), DefaultLocations...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read locations: %w", err)
	}
	var locs []string
	if err := json.Unmarshal([]byte(raw), &locs); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	return locs, nil
}

func (m *Manager) saveList(ctx context.Context, locs []string) error {
	raw, err := json.Marshal(locs)
	if err != nil {
		return fmt.Errorf("encode locations: %w", err)
	}
	if err := m.store.Set(ctx, KeyLocations, string(raw)); err != nil {
		return fmt.Errorf("write locations: %w", err)
	}
	return nil
}

// Default returns the default location.
func (m *Manager) Default(ctx context.Context) (string, error) {
	loc, err := m.defaultLocation(ctx)
	observability.RecordSettingsOperation("default", err)
	return loc, err
}

func (m *Manager) defaultLocation(ctx context.Context) (string, error) {
	loc, err := m.store.Get(ctx, KeyDefaultLocation)
	if errors.Is(err, ErrNotFound) {
		return DefaultLocation, nil
	}
	if err != nil {
		return "", fmt.Errorf("read default location: %w", err)
	}
	return loc, nil
}

// Add trims and saves location and returns the saved spelling. The first location
// saved into an empty list becomes the default.
func (m *Manager) Add(ctx context.Context, location string) (string, error) {
	loc, err := m.add(ctx, location)
	observability.RecordSettingsOperation("add", err)
	return loc, err
}

func (m *Manager) add(ctx context.Context, location string) (string, error) {
	loc, err := validation.ValidateLocation(location, m.rules)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	locs, err := m.list(ctx)
	if err != nil {
		return "", err
	}
	if indexOf(locs, loc) >= 0 {
		return "", fmt.Errorf("%w: %s", ErrDuplicateLocation, loc)
	}
	locs = append(locs, loc)
	if err := m.saveList(ctx, locs); err != nil {
		return "", err
	}
	if len(locs) == 1 {
		if err := m.store.Set(ctx, KeyDefaultLocation, loc); err != nil {
			return "", fmt.Errorf("write default location: %w", err)
		}
	}
	return loc, nil
}

// Delete removes location. The default location cannot be deleted.
func (m *Manager) Delete(ctx context.Context, location string) error {
	err := m.delete(ctx, location)
	observability.RecordSettingsOperation("delete", err)
	return err
}

func (m *Manager) delete(ctx context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	def, err := m.defaultLocation(ctx)
	if err != nil {
		return err
	}
	if validation.SameLocation(def, location) {
		return fmt.Errorf("%w: %s", ErrDeleteDefault, def)
	}
	locs, err := m.list(ctx)
	if err != nil {
		return err
	}
	i := indexOf(locs, location)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLocationNotSaved, location)
	}
	locs = append(locs[:i], locs[i+1:]...)
	return m.saveList(ctx, locs)
}

// SetDefault makes a saved location the default and returns its saved spelling.
func (m *Manager) SetDefault(ctx context.Context, location string) (string, error) {
	loc, err := m.setDefault(ctx, location)
	observability.RecordSettingsOperation("set_default", err)
	return loc, err
}

func (m *Manager) setDefault(ctx context.Context, location string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	locs, err := m.list(ctx)
	if err != nil {
		return "", err
	}
	i := indexOf(locs, location)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrLocationNotSaved, location)
	}
	if err := m.store.Set(ctx, KeyDefaultLocation, locs[i]); err != nil {
		return "", fmt.Errorf("write default location: %w", err)
	}
	return locs[i], nil
}

// Ping checks the backing store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func indexOf(locs []string, location string) int {
	for i, l := range locs {
		if validation.SameLocation(l, location) {
			return i
		}
	}
	return -1
}
