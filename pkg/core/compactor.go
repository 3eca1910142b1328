package core

import (
	"context"

	"github.com/robcohen/peervault/pkg/document"
	"github.com/robcohen/peervault/pkg/gc"
)

// docCompactor adapts document.Manager's Compact, which returns a
// *document.CompactResult, to gc.Compactor's value-typed CompactResult so
// pkg/gc never needs to import pkg/document.
type docCompactor struct {
	doc *document.Manager
}

func (d docCompactor) DocSize() (int, error) { return d.doc.DocSize() }

func (d docCompactor) ReferencedBlobHashes() map[string]struct{} {
	return d.doc.ReferencedBlobHashes()
}

func (d docCompactor) Compact(ctx context.Context) (gc.CompactResult, error) {
	result, err := d.doc.Compact(ctx)
	if err != nil {
		return gc.CompactResult{}, err
	}
	return gc.CompactResult{BeforeSize: result.BeforeSize, AfterSize: result.AfterSize}, nil
}
