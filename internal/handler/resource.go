package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/query"
)

// Store is the persistence contract shared by every resource.
type Store[T any] interface {
	Create(ctx context.Context, doc *T) error
	FindByID(ctx context.Context, id uint64) (*T, error)
	Find(ctx context.Context, f *query.Features) ([]T, error)
	Update(ctx context.Context, doc *T) error
	DeleteByID(ctx context.Context, id uint64) error
}

// Resource serves the five CRUD endpoints of one entity.  The optional
// hooks customise a step without replacing the handler:
//
//  New        returns the document the create body is decoded onto (defaults).
//  Scope      adds conditions to list queries.
//  Prepare    runs after decoding; prev is nil on create.  On update it
//             must restore the identity and other immutable fields.
//  Authorize  runs on the stored document before update and delete.
//  Expand     fills references on GetOne.
//  AfterWrite runs after a successful create, update or delete.
type Resource[T any] struct {
	Store  Store[T]
	Schema *query.Schema

	New        func() *T
	Scope      func(c echo.Context, f *query.Features) error
	Prepare    func(c echo.Context, doc, prev *T) error
	Authorize  func(c echo.Context, doc *T) error
	Expand     func(c echo.Context, doc *T) error
	AfterWrite func(c echo.Context, doc *T)
}

func (r *Resource[T]) CreateOne(c echo.Context) error {
	doc := new(T)
	if r.New != nil {
		doc = r.New()
	}
	if err := bindBody(c, doc); err != nil {
		return err
	}
	if r.Prepare != nil {
		if err := r.Prepare(c, doc, nil); err != nil {
			return err
		}
	}
	if err := c.Validate(doc); err != nil {
		return err
	}

	ctx, cancel := dbContext(c)
	defer cancel()
	if err := r.Store.Create(ctx, doc); err != nil {
		return err
	}
	if r.AfterWrite != nil {
		r.AfterWrite(c, doc)
	}
	return document(c, http.StatusCreated, doc)
}

func (r *Resource[T]) GetOne(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	return r.getByID(c, id)
}

// getByID is GetOne for an id that does not come from the path.
func (r *Resource[T]) getByID(c echo.Context, id uint64) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	doc, err := r.Store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if r.Expand != nil {
		if err := r.Expand(c, doc); err != nil {
			return err
		}
	}
	return document(c, http.StatusOK, doc)
}

func (r *Resource[T]) GetAll(c echo.Context) error {
	f := query.New(r.Schema, c.QueryParams())
	if r.Scope != nil {
		if err := r.Scope(c, f); err != nil {
			return err
		}
	}
	f.Filter().Sort().LimitFields().Paginate()

	ctx, cancel := dbContext(c)
	defer cancel()
	docs, err := r.Store.Find(ctx, f)
	if err != nil {
		return err
	}
	out, err := f.Project(docs)
	if err != nil {
		return err
	}
	return list(c, len(docs), out)
}

// UpdateOne decodes the body onto a copy of the stored document, so
// fields absent from the body keep their values.
func (r *Resource[T]) UpdateOne(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	prev, err := r.Store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if r.Authorize != nil {
		if err := r.Authorize(c, prev); err != nil {
			return err
		}
	}
	doc := new(T)
	*doc = *prev
	if err := bindBody(c, doc); err != nil {
		return err
	}
	if r.Prepare != nil {
		if err := r.Prepare(c, doc, prev); err != nil {
			return err
		}
	}
	if err := c.Validate(doc); err != nil {
		return err
	}
	if err := r.Store.Update(ctx, doc); err != nil {
		return err
	}
	if r.AfterWrite != nil {
		r.AfterWrite(c, doc)
	}
	return document(c, http.StatusOK, doc)
}

func (r *Resource[T]) DeleteOne(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	var prev *T
	if r.Authorize != nil || r.AfterWrite != nil {
		if prev, err = r.Store.FindByID(ctx, id); err != nil {
			return err
		}
	}
	if r.Authorize != nil {
		if err := r.Authorize(c, prev); err != nil {
			return err
		}
	}
	if err := r.Store.DeleteByID(ctx, id); err != nil {
		return err
	}
	if r.AfterWrite != nil {
		r.AfterWrite(c, prev)
	}
	return c.NoContent(http.StatusNoContent)
}
