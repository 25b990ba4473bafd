package testdoc

import (
	"context"
	"sort"

	"testsummary/internal/testdoc"
)

// Repository looks up test and module documents.
type Repository interface {
	// GetTest returns testdoc.ErrNotFound (wrapped) when id is unknown.
	GetTest(ctx context.Context, id string) (testdoc.Test, error)
	// GetTests returns the known tests among ids, in the order given.
	GetTests(ctx context.Context, ids []string) ([]testdoc.Test, error)
	// GetModules resolves ids. Unknown ids are absent from the index.
	GetModules(ctx context.Context, ids []string) (testdoc.ModuleIndex, error)
	// ListTests returns one page ordered by UpdatedAt descending, then ID, and the total count.
	ListTests(ctx context.Context, page Page) ([]testdoc.Test, int, error)
	Ping(ctx context.Context) error
	Name() string
}

// Writer stores documents. Upserts replace by id.
type Writer interface {
	UpsertTest(ctx context.Context, t testdoc.Test) error
	UpsertModule(ctx context.Context, m testdoc.Module) error
}

type Store interface {
	Repository
	Writer
}

type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages is ceil(total/size).
func (p Page) TotalPages(total int) int {
	if p.Size <= 0 {
		return 0
	}
	return (total + p.Size - 1) / p.Size
}

func sortForListing(tests []testdoc.Test) {
	sort.SliceStable(tests, func(i, j int) bool {
		if !tests[i].UpdatedAt.Equal(tests[j].UpdatedAt) {
			return tests[i].UpdatedAt.After(tests[j].UpdatedAt)
		}
		return tests[i].ID < tests[j].ID
	})
}
