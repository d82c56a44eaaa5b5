package annotatorstore

import (
	"context"
	"sort"

	"annogate/internal/annotation"
)

// Backend persists annotation documents. Get and Delete return
// sentinel.ErrNotFound for unknown ids. Search returns every match, most
// recently updated first; paging and authorization filtering happen in the
// handler.
type Backend interface {
	Get(ctx context.Context, id string) (annotation.Annotation, error)
	Save(ctx context.Context, ann annotation.Annotation) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q Query) ([]annotation.Annotation, error)
	// CreateAll creates the schema if missing.
	CreateAll(ctx context.Context) error
	// DropAll removes the schema and every document.
	DropAll(ctx context.Context) error
}

func sortByUpdated(docs []annotation.Annotation) {
	sort.SliceStable(docs, func(i, j int) bool {
		ui, _ := docs[i][annotation.FieldUpdated].(string)
		uj, _ := docs[j][annotation.FieldUpdated].(string)
		if ui != uj {
			return ui > uj
		}
		return docs[i].ID() < docs[j].ID()
	})
}
