package memstore

import (
	"context"
	"sort"
	"sync"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

type DocumentRepo struct {
	mu    sync.RWMutex
	byJob map[string]*model.Document
}

func NewDocumentRepo() *DocumentRepo {
	return &DocumentRepo{byJob: make(map[string]*model.Document)}
}

func (r *DocumentRepo) Create(ctx context.Context, tx repository.Tx, doc *model.Document) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byJob[doc.JobID]; ok {
		return cloneDoc(existing), nil
	}
	r.byJob[doc.JobID] = cloneDoc(doc)
	return cloneDoc(doc), nil
}

func (r *DocumentRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byJob[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneDoc(d), nil
}

func (r *DocumentRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Document
	for _, d := range r.byJob {
		if d.OwnerID == ownerID {
			out = append(out, cloneDoc(d))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneDoc(d *model.Document) *model.Document {
	cp := *d
	cp.Tags = append([]string(nil), d.Tags...)
	return &cp
}
