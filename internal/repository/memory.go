package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/InverskProperty/propsk-sub012/internal/models"
	"github.com/InverskProperty/propsk-sub012/internal/tagsync"
)

// memoryDB backs every in-memory repository so cross-entity queries see a
// consistent view. Rows are stored by value and copied on the way out.
type memoryDB struct {
	mu          sync.RWMutex
	seq         int64
	portfolios  map[int64]models.Portfolio
	blocks      map[int64]models.Block
	assignments map[int64]models.Assignment
	properties  map[int64]models.Property
	syncLogs    []models.SyncLog
	analytics   []models.AssignmentStats
	now         func() time.Time
}

// NewMemoryStore returns a Store kept entirely in process memory. It enforces
// the same uniqueness rules as the PostgreSQL schema and is used when no
// database is configured and in tests.
func NewMemoryStore() *Store {
	db := &memoryDB{
		portfolios:  map[int64]models.Portfolio{},
		blocks:      map[int64]models.Block{},
		assignments: map[int64]models.Assignment{},
		properties:  map[int64]models.Property{},
		now:         func() time.Time { return time.Now().UTC() },
	}
	return &Store{
		Portfolios:  &memoryPortfolios{db: db},
		Blocks:      &memoryBlocks{db: db},
		Assignments: &memoryAssignments{db: db},
		Properties:  &memoryProperties{db: db},
		SyncLogs:    &memorySyncLogs{db: db},
		Analytics:   &memoryAnalytics{db: db},
	}
}

func (db *memoryDB) nextID() int64 {
	db.seq++
	return db.seq
}

func needsSync(tagRef string, status models.SyncStatus) bool {
	return tagRef == "" || !tagsync.IsOpaqueID(tagRef) || status.NeedsSync()
}

// Portfolios

type memoryPortfolios struct{ db *memoryDB }

func (r *memoryPortfolios) FindByID(_ context.Context, id int64) (*models.Portfolio, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	p, ok := r.db.portfolios[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memoryPortfolios) FindByExternalTagID(_ context.Context, tagID string) (*models.Portfolio, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, p := range r.db.portfolios {
		if p.ExternalTagID == tagID {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *memoryPortfolios) FindAllActive(_ context.Context) ([]models.Portfolio, error) {
	return r.filter(func(p models.Portfolio) bool { return p.IsActive }), nil
}

func (r *memoryPortfolios) FindNeedingSync(_ context.Context) ([]models.Portfolio, error) {
	return r.filter(func(p models.Portfolio) bool {
		return p.IsActive && needsSync(p.ExternalTagID, p.SyncStatus)
	}), nil
}

func (r *memoryPortfolios) filter(keep func(models.Portfolio) bool) []models.Portfolio {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []models.Portfolio{}
	for _, p := range r.db.portfolios {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryPortfolios) Create(_ context.Context, p *models.Portfolio) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	p.ID = r.db.nextID()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.SyncStatus == "" {
		p.SyncStatus = models.SyncStatusPending
	}
	r.db.portfolios[p.ID] = *p
	return nil
}

func (r *memoryPortfolios) Update(_ context.Context, p *models.Portfolio) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.portfolios[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = r.db.now()
	r.db.portfolios[p.ID] = *p
	return nil
}

func (r *memoryPortfolios) Delete(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	delete(r.db.portfolios, id)
	return nil
}

// Blocks

type memoryBlocks struct{ db *memoryDB }

func (r *memoryBlocks) FindByID(_ context.Context, id int64) (*models.Block, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	b, ok := r.db.blocks[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *memoryBlocks) FindActiveByPortfolio(_ context.Context, portfolioID int64) ([]models.Block, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []models.Block{}
	for _, b := range r.db.blocks {
		if b.IsActive && b.PortfolioID == portfolioID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memoryBlocks) ExistsByNameInPortfolio(_ context.Context, portfolioID int64, name string, excludeID int64) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	want := strings.ToLower(strings.TrimSpace(name))
	for _, b := range r.db.blocks {
		if !b.IsActive || b.PortfolioID != portfolioID || b.ID == excludeID {
			continue
		}
		if strings.ToLower(strings.TrimSpace(b.Name)) == want {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryBlocks) NextDisplayOrder(_ context.Context, portfolioID int64) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	highest := 0
	for _, b := range r.db.blocks {
		if b.IsActive && b.PortfolioID == portfolioID && b.DisplayOrder > highest {
			highest = b.DisplayOrder
		}
	}
	return highest + 1, nil
}

func (r *memoryBlocks) FindNeedingSync(_ context.Context) ([]models.Block, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []models.Block{}
	for _, b := range r.db.blocks {
		parent, ok := r.db.portfolios[b.PortfolioID]
		if !b.IsActive || !ok || !parent.IsActive {
			continue
		}
		if needsSync(b.ExternalTagID, b.SyncStatus) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryBlocks) Create(_ context.Context, b *models.Block) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	b.ID = r.db.nextID()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.SyncStatus == "" {
		b.SyncStatus = models.SyncStatusPending
	}
	r.db.blocks[b.ID] = *b
	return nil
}

func (r *memoryBlocks) Update(_ context.Context, b *models.Block) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.blocks[b.ID]; !ok {
		return ErrNotFound
	}
	b.UpdatedAt = r.db.now()
	r.db.blocks[b.ID] = *b
	return nil
}

func (r *memoryBlocks) UpdateDisplayOrders(_ context.Context, orders map[int64]int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for id := range orders {
		if _, ok := r.db.blocks[id]; !ok {
			return ErrNotFound
		}
	}
	now := r.db.now()
	for id, order := range orders {
		b := r.db.blocks[id]
		b.DisplayOrder = order
		b.UpdatedAt = now
		r.db.blocks[id] = b
	}
	return nil
}

func (r *memoryBlocks) Retire(_ context.Context, b *models.Block, reassigned []models.Assignment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.blocks[b.ID]; !ok {
		return ErrNotFound
	}
	assignments := &memoryAssignments{db: r.db}
	for i := range reassigned {
		a := &reassigned[i]
		if _, ok := r.db.assignments[a.ID]; !ok {
			return ErrNotFound
		}
		if assignments.conflicts(a) {
			return ErrDuplicateAssignment
		}
	}

	now := r.db.now()
	for i := range reassigned {
		reassigned[i].UpdatedAt = now
		r.db.assignments[reassigned[i].ID] = reassigned[i]
	}
	b.UpdatedAt = now
	r.db.blocks[b.ID] = *b
	return nil
}

func (r *memoryBlocks) DeleteByPortfolio(_ context.Context, portfolioID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for id, b := range r.db.blocks {
		if b.PortfolioID == portfolioID {
			delete(r.db.blocks, id)
		}
	}
	return nil
}

// Assignments

type memoryAssignments struct{ db *memoryDB }

func (r *memoryAssignments) FindByID(_ context.Context, id int64) (*models.Assignment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	a, ok := r.db.assignments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *memoryAssignments) FindActive(_ context.Context, propertyID, portfolioID int64, kind models.AssignmentKind) (*models.Assignment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, a := range r.db.assignments {
		if a.IsActive && a.PropertyID == propertyID && a.PortfolioID == portfolioID && a.Kind == kind {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *memoryAssignments) FindLatestInactive(_ context.Context, propertyID, portfolioID int64, kind models.AssignmentKind) (*models.Assignment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var latest *models.Assignment
	for _, a := range r.db.assignments {
		if a.IsActive || a.PropertyID != propertyID || a.PortfolioID != portfolioID || a.Kind != kind {
			continue
		}
		if latest == nil || a.UpdatedAt.After(latest.UpdatedAt) ||
			(a.UpdatedAt.Equal(latest.UpdatedAt) && a.ID > latest.ID) {
			candidate := a
			latest = &candidate
		}
	}
	return latest, nil
}

func (r *memoryAssignments) FindActiveByBlock(_ context.Context, blockID int64) ([]models.Assignment, error) {
	return r.filter(func(a models.Assignment) bool {
		return a.IsActive && a.BlockID != nil && *a.BlockID == blockID
	}), nil
}

func (r *memoryAssignments) FindActiveByPortfolio(_ context.Context, portfolioID int64) ([]models.Assignment, error) {
	return r.filter(func(a models.Assignment) bool {
		return a.IsActive && a.PortfolioID == portfolioID
	}), nil
}

func (r *memoryAssignments) FindActiveByProperty(_ context.Context, propertyID int64) ([]models.Assignment, error) {
	return r.filter(func(a models.Assignment) bool {
		return a.IsActive && a.PropertyID == propertyID
	}), nil
}

func (r *memoryAssignments) FindNeedingSync(_ context.Context) ([]models.Assignment, error) {
	return r.filter(func(a models.Assignment) bool {
		return a.IsActive && a.Kind == models.AssignmentKindPrimary && a.SyncStatus.NeedsSync()
	}), nil
}

func (r *memoryAssignments) filter(keep func(models.Assignment) bool) []models.Assignment {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []models.Assignment{}
	for _, a := range r.db.assignments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryAssignments) CountActiveInBlock(ctx context.Context, blockID int64) (int, error) {
	rows, err := r.FindActiveByBlock(ctx, blockID)
	return len(rows), err
}

// conflicts must be called with the lock held.
func (r *memoryAssignments) conflicts(a *models.Assignment) bool {
	if !a.IsActive {
		return false
	}
	for _, other := range r.db.assignments {
		if other.ID != a.ID && other.IsActive &&
			other.PropertyID == a.PropertyID && other.PortfolioID == a.PortfolioID && other.Kind == a.Kind {
			return true
		}
	}
	return false
}

func (r *memoryAssignments) Create(_ context.Context, a *models.Assignment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.conflicts(a) {
		return ErrDuplicateAssignment
	}
	if a.SyncStatus == "" {
		a.SyncStatus = models.SyncStatusPending
	}
	now := r.db.now()
	a.ID = r.db.nextID()
	a.CreatedAt, a.UpdatedAt = now, now
	r.db.assignments[a.ID] = *a
	return nil
}

func (r *memoryAssignments) Update(_ context.Context, a *models.Assignment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.assignments[a.ID]; !ok {
		return ErrNotFound
	}
	if r.conflicts(a) {
		return ErrDuplicateAssignment
	}
	a.UpdatedAt = r.db.now()
	r.db.assignments[a.ID] = *a
	return nil
}

func (r *memoryAssignments) DeleteByPortfolio(_ context.Context, portfolioID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for id, a := range r.db.assignments {
		if a.PortfolioID == portfolioID {
			delete(r.db.assignments, id)
		}
	}
	return nil
}

func (r *memoryAssignments) Stats(_ context.Context, portfolioID *int64) (*models.AssignmentStats, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	stats := &models.AssignmentStats{ComputedAt: r.db.now(), PortfolioID: portfolioID}
	portfoliosByProperty := map[int64]map[int64]bool{}
	inScope := map[int64]bool{}

	for _, a := range r.db.assignments {
		if !a.IsActive {
			continue
		}
		if portfoliosByProperty[a.PropertyID] == nil {
			portfoliosByProperty[a.PropertyID] = map[int64]bool{}
		}
		portfoliosByProperty[a.PropertyID][a.PortfolioID] = true

		if portfolioID != nil && a.PortfolioID != *portfolioID {
			continue
		}
		inScope[a.PropertyID] = true
		stats.TotalActive++
		switch a.SyncStatus {
		case models.SyncStatusPending:
			stats.Pending++
		case models.SyncStatusSynced:
			stats.Synced++
		case models.SyncStatusFailed:
			stats.Failed++
		}
		if a.BlockID != nil {
			stats.InBlocks++
		}
	}

	for propertyID := range inScope {
		if len(portfoliosByProperty[propertyID]) > 1 {
			stats.MultiPortfolioProperties++
		}
	}
	for _, b := range r.db.blocks {
		if b.IsActive && (portfolioID == nil || b.PortfolioID == *portfolioID) {
			stats.ActiveBlocks++
		}
	}
	return stats, nil
}

// Properties

type memoryProperties struct{ db *memoryDB }

func (r *memoryProperties) FindByID(_ context.Context, id int64) (*models.Property, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	p, ok := r.db.properties[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memoryProperties) FindByExternalRef(_ context.Context, ref string) (*models.Property, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, p := range r.db.properties {
		if p.ExternalRef != nil && *p.ExternalRef == ref {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *memoryProperties) FindWithLegacyPortfolio(_ context.Context) ([]models.Property, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []models.Property{}
	for _, p := range r.db.properties {
		if p.PortfolioID != nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryProperties) Create(_ context.Context, p *models.Property) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	p.ID = r.db.nextID()
	p.CreatedAt, p.UpdatedAt = now, now
	r.db.properties[p.ID] = *p
	return nil
}

func (r *memoryProperties) SetLegacyPortfolio(_ context.Context, propertyID int64, portfolioID *int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.properties[propertyID]
	if !ok {
		return ErrNotFound
	}
	p.PortfolioID = portfolioID
	p.UpdatedAt = r.db.now()
	r.db.properties[propertyID] = p
	return nil
}

// Sync logs

type memorySyncLogs struct{ db *memoryDB }

func (r *memorySyncLogs) Create(_ context.Context, entry *models.SyncLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	entry.ID = r.db.nextID()
	r.db.syncLogs = append(r.db.syncLogs, *entry)
	return nil
}

func (r *memorySyncLogs) FindRecent(_ context.Context, limit int) ([]models.SyncLog, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []models.SyncLog{}
	for i := len(r.db.syncLogs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, r.db.syncLogs[i])
	}
	return out, nil
}

// Analytics

type memoryAnalytics struct{ db *memoryDB }

func (r *memoryAnalytics) Save(_ context.Context, stats *models.AssignmentStats) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.analytics = append(r.db.analytics, *stats)
	return nil
}

func (r *memoryAnalytics) Latest(_ context.Context, portfolioID int64) (*models.AssignmentStats, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for i := len(r.db.analytics) - 1; i >= 0; i-- {
		s := r.db.analytics[i]
		if s.PortfolioID != nil && *s.PortfolioID == portfolioID {
			return &s, nil
		}
	}
	return nil, nil
}
