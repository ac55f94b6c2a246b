package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidemetrics/adrecon/internal/models"
)

// InMemorySpendStore provides in-memory storage for spend records.
type InMemorySpendStore struct {
	mu      sync.RWMutex
	records []models.SpendRecord
}

// NewInMemorySpendStore creates a new in-memory spend store.
func NewInMemorySpendStore() *InMemorySpendStore {
	return &InMemorySpendStore{}
}

func (s *InMemorySpendStore) SaveBatch(ctx context.Context, records []models.SpendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	return nil
}

func (s *InMemorySpendStore) ListByRange(ctx context.Context, userScope string, from, to time.Time) ([]models.SpendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.SpendRecord, 0)
	for _, r := range s.records {
		if userScope != "" && r.UserScope != userScope {
			continue
		}
		if inRange(r.Date, from, to) {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// InMemoryDeliveryStore provides in-memory storage for delivery counts,
// keyed by (user_scope, date, product, country).
type InMemoryDeliveryStore struct {
	mu      sync.RWMutex
	records map[deliveryKey]models.DeliveryRecord
}

type deliveryKey struct {
	userScope string
	day       string
	product   string
	country   string
}

// NewInMemoryDeliveryStore creates a new in-memory delivery store.
func NewInMemoryDeliveryStore() *InMemoryDeliveryStore {
	return &InMemoryDeliveryStore{records: make(map[deliveryKey]models.DeliveryRecord)}
}

func (s *InMemoryDeliveryStore) Upsert(ctx context.Context, rec models.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.UpdatedAt = time.Now().UTC()
	s.records[deliveryKeyOf(rec)] = rec
	return nil
}

func (s *InMemoryDeliveryStore) ListByRange(ctx context.Context, userScope string, from, to time.Time) ([]models.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.DeliveryRecord, 0, len(s.records))
	for _, r := range s.records {
		if userScope != "" && r.UserScope != userScope {
			continue
		}
		if inRange(r.Date, from, to) {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		if result[i].Product != result[j].Product {
			return result[i].Product < result[j].Product
		}
		return result[i].Country < result[j].Country
	})
	return result, nil
}

func deliveryKeyOf(rec models.DeliveryRecord) deliveryKey {
	return deliveryKey{
		userScope: rec.UserScope,
		day:       rec.Date.Format("2006-01-02"),
		product:   rec.Product,
		country:   rec.Country,
	}
}

// InMemoryRateRepo provides in-memory storage for recorded exchange rates.
type InMemoryRateRepo struct {
	mu    sync.RWMutex
	rates map[string]models.ExchangeRate // yyyy-mm-dd -> rate
}

// NewInMemoryRateRepo creates a new in-memory rate repository.
func NewInMemoryRateRepo() *InMemoryRateRepo {
	return &InMemoryRateRepo{rates: make(map[string]models.ExchangeRate)}
}

func (s *InMemoryRateRepo) Upsert(ctx context.Context, rate models.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate.UpdatedAt = time.Now().UTC()
	s.rates[rate.Date.Format("2006-01-02")] = rate
	return nil
}

func (s *InMemoryRateRepo) ListAll(ctx context.Context) ([]models.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.ExchangeRate, 0, len(s.rates))
	for _, r := range s.rates {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// InMemoryFinanceStore provides in-memory storage for finance receipts.
type InMemoryFinanceStore struct {
	mu      sync.RWMutex
	records []models.FinanceRecord
}

// NewInMemoryFinanceStore creates a new in-memory finance store.
func NewInMemoryFinanceStore() *InMemoryFinanceStore {
	return &InMemoryFinanceStore{}
}

func (s *InMemoryFinanceStore) SaveBatch(ctx context.Context, records []models.FinanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	return nil
}

func (s *InMemoryFinanceStore) ListAll(ctx context.Context) ([]models.FinanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.FinanceRecord, len(s.records))
	copy(result, s.records)
	return result, nil
}

// InMemoryProductRepo provides in-memory storage for the product catalog.
type InMemoryProductRepo struct {
	mu       sync.RWMutex
	products map[string]models.Product
}

// NewInMemoryProductRepo creates a new in-memory product repository.
func NewInMemoryProductRepo() *InMemoryProductRepo {
	return &InMemoryProductRepo{products: make(map[string]models.Product)}
}

func (s *InMemoryProductRepo) Upsert(ctx context.Context, p models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	s.products[p.Name] = p
	return nil
}

func (s *InMemoryProductRepo) GetByName(ctx context.Context, name string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[name]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryProductRepo) ListAll(ctx context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// inRange treats zero bounds as open.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
