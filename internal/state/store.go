// Package state persists the catalog of datasets a user has opened and the
// navigation bookmarks taken inside them, using SQLite.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/leapstack-labs/leapview/pkg/navigation"
	"github.com/leapstack-labs/leapview/pkg/source"
)

// ErrNotFound is returned when a dataset or bookmark does not exist.
var ErrNotFound = errors.New("not found")

// LastPositionBookmark is the bookmark name holding the most recent position.
const LastPositionBookmark = "_last"

// DatasetKind tells how a dataset's files are opened.
type DatasetKind string

// Dataset kinds.
const (
	DatasetDelimited DatasetKind = "delimited"
	DatasetTable     DatasetKind = "table"
	DatasetCombined  DatasetKind = "combined"
)

// Dataset is a named set of file configurations.
type Dataset struct {
	ID        string
	Name      string
	Kind      DatasetKind
	Files     []*source.FileConfig
	CreatedAt time.Time
	UpdatedAt time.Time
	OpenedAt  *time.Time
}

// Bookmark is a saved position, optionally with a range end.
type Bookmark struct {
	ID        string
	DatasetID string
	Name      string
	Position  navigation.Position
	RangeEnd  *navigation.Position
	CreatedAt time.Time
}

// Store is the persistence contract used by the CLI.
type Store interface {
	SaveDataset(ctx context.Context, d *Dataset) error
	GetDataset(ctx context.Context, name string) (*Dataset, error)
	ListDatasets(ctx context.Context) ([]*Dataset, error)
	DeleteDataset(ctx context.Context, name string) error
	MarkOpened(ctx context.Context, id string) error

	SaveBookmark(ctx context.Context, b *Bookmark) error
	ListBookmarks(ctx context.Context, datasetID string) ([]*Bookmark, error)
	GetBookmark(ctx context.Context, datasetID, name string) (*Bookmark, error)
	DeleteBookmark(ctx context.Context, datasetID, name string) error

	Close() error
}
