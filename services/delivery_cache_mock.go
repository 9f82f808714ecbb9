package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kendall-kelly/delivery-tracking-api/models"
)

// MockDeliveryCache is an in-memory DeliveryCache for testing.
// Entries are stored as JSON so reads behave like the Redis implementation.
type MockDeliveryCache struct {
	entries map[string][]byte
	mu      sync.RWMutex
}

// NewMockDeliveryCache creates an empty mock cache
func NewMockDeliveryCache() *MockDeliveryCache {
	return &MockDeliveryCache{entries: make(map[string][]byte)}
}

// SetAsMockForTesting sets this mock as the global delivery cache
func (m *MockDeliveryCache) SetAsMockForTesting() {
	SetDeliveryCache(m)
}

func (m *MockDeliveryCache) GetDelivery(_ context.Context, id uint) (*models.Delivery, error) {
	return m.get(deliveryKey(id))
}

func (m *MockDeliveryCache) GetDeliveryByTracking(_ context.Context, trackingID string) (*models.Delivery, error) {
	return m.get(trackingKey(trackingID))
}

func (m *MockDeliveryCache) SetDelivery(_ context.Context, delivery *models.Delivery) error {
	data, err := json.Marshal(delivery)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[deliveryKey(delivery.ID)] = data
	if delivery.TrackingID != nil {
		m.entries[trackingKey(*delivery.TrackingID)] = data
	}
	return nil
}

func (m *MockDeliveryCache) Invalidate(_ context.Context, delivery *models.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, deliveryKey(delivery.ID))
	if delivery.TrackingID != nil {
		delete(m.entries, trackingKey(*delivery.TrackingID))
	}
	return nil
}

// Has reports whether a delivery is cached under its id
func (m *MockDeliveryCache) Has(id uint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[deliveryKey(id)]
	return ok
}

// Clear removes every entry
func (m *MockDeliveryCache) Clear() {
	m.mu.Lock()
	m.entries = make(map[string][]byte)
	m.mu.Unlock()
}

func (m *MockDeliveryCache) get(key string) (*models.Delivery, error) {
	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var delivery models.Delivery
	if err := json.Unmarshal(data, &delivery); err != nil {
		return nil, err
	}
	return &delivery, nil
}
