package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"inkforge/internal/domain"
)

// In-memory repository implementations. They back unit tests and local runs
// without a database, and mirror the semantics of the PostgreSQL adapters,
// including the atomic conditional debit.

// MemJobs is an in-memory domain.JobRepository.
type MemJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewMemJobs() *MemJobs {
	return &MemJobs{jobs: map[string]*domain.Job{}}
}

func (m *MemJobs) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = job.CreatedAt
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemJobs) ListQueued(ctx context.Context, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if j.Status == domain.JobStatusQueued {
			out = append(out, *j)
		}
	}
	sortByCreatedAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemJobs) ListRunningWithPrediction(ctx context.Context) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if j.Status == domain.JobStatusRunning && j.ExternalPredictionID != "" {
			out = append(out, *j)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (m *MemJobs) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemJobs) LatestByProductAndType(ctx context.Context, productID string, t domain.JobType) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Job
	for _, j := range m.jobs {
		if j.ProductID != productID || j.Type != t {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemJobs) ListByProduct(ctx context.Context, productID string) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if j.ProductID == productID {
			out = append(out, *j)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (m *MemJobs) Update(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	job.CreatedAt = stored.CreatedAt
	job.UpdatedAt = time.Now()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func sortByCreatedAt(jobs []domain.Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}

// MemAssets is an in-memory domain.AssetRepository.
type MemAssets struct {
	mu     sync.Mutex
	assets []*domain.Asset
}

func NewMemAssets() *MemAssets {
	return &MemAssets{}
}

func (m *MemAssets) Insert(ctx context.Context, asset *domain.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}
	cp := *asset
	m.assets = append(m.assets, &cp)
	return nil
}

func (m *MemAssets) GetByID(ctx context.Context, assetID string) (*domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assets {
		if a.ID == assetID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemAssets) LatestByProductAndKind(ctx context.Context, productID string, kind domain.AssetKind) (*domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Asset
	for _, a := range m.assets {
		if a.ProductID != productID || a.Kind != kind {
			continue
		}
		if latest == nil || !a.CreatedAt.Before(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemAssets) ListByProduct(ctx context.Context, productID string) ([]domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Asset
	for _, a := range m.assets {
		if a.ProductID == productID {
			out = append(out, *a)
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		if out[i].DisplayOrder != out[k].DisplayOrder {
			return out[i].DisplayOrder < out[k].DisplayOrder
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out, nil
}

func (m *MemAssets) ClearPrimary(ctx context.Context, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assets {
		if a.ProductID == productID {
			a.IsPrimary = false
		}
	}
	return nil
}

// MemProducts is an in-memory domain.ProductRepository.
type MemProducts struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

func NewMemProducts(products ...*domain.Product) *MemProducts {
	m := &MemProducts{products: map[string]*domain.Product{}}
	for _, p := range products {
		cp := *p
		m.products[p.ID] = &cp
	}
	return m
}

func (m *MemProducts) Add(p *domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
}

func (m *MemProducts) GetByID(ctx context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// MemWallets is an in-memory domain.WalletRepository. Debit and credit hold
// one lock across the balance check, the mutation, and the transaction
// append, matching the serializable read-modify-write the Postgres adapter
// performs.
type MemWallets struct {
	mu           sync.Mutex
	balances     map[string]int
	transactions []domain.Transaction
}

func NewMemWallets() *MemWallets {
	return &MemWallets{balances: map[string]int{}}
}

func (m *MemWallets) SetBalance(userID string, balance int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
}

func (m *MemWallets) Balance(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return balance, nil
}

func (m *MemWallets) DebitIfSufficient(ctx context.Context, userID string, amount int, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if balance < amount {
		return domain.ErrInsufficientBalance
	}
	m.balances[userID] = balance - amount
	m.transactions = append(m.transactions, domain.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    -amount,
		Type:      domain.TransactionDebit,
		Reference: reference,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *MemWallets) Credit(ctx context.Context, userID string, amount int, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += amount
	m.transactions = append(m.transactions, domain.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Type:      domain.TransactionCredit,
		Reference: reference,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *MemWallets) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].UserID == userID {
			out = append(out, m.transactions[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// MemModels3D is an in-memory domain.Model3DRepository.
type MemModels3D struct {
	mu     sync.Mutex
	models map[string]*domain.Model3D
}

func NewMemModels3D(models ...*domain.Model3D) *MemModels3D {
	m := &MemModels3D{models: map[string]*domain.Model3D{}}
	for _, model := range models {
		cp := *model
		m.models[model.ID] = &cp
	}
	return m
}

func (m *MemModels3D) GetByID(ctx context.Context, modelID string) (*domain.Model3D, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, ok := m.models[modelID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *model
	return &cp, nil
}

func (m *MemModels3D) Update(ctx context.Context, model *domain.Model3D) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[model.ID]; !ok {
		return domain.ErrNotFound
	}
	model.UpdatedAt = time.Now()
	cp := *model
	m.models[model.ID] = &cp
	return nil
}

func (m *MemModels3D) SetFailure(ctx context.Context, modelID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, ok := m.models[modelID]
	if !ok {
		return domain.ErrNotFound
	}
	model.Status = domain.Model3DStatusFailed
	model.ErrorMessage = message
	model.UpdatedAt = time.Now()
	return nil
}

var (
	_ domain.JobRepository     = (*MemJobs)(nil)
	_ domain.AssetRepository   = (*MemAssets)(nil)
	_ domain.ProductRepository = (*MemProducts)(nil)
	_ domain.WalletRepository  = (*MemWallets)(nil)
	_ domain.Model3DRepository = (*MemModels3D)(nil)
)
