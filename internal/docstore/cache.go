package docstore

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jward/cortex/internal/model"
)

// docCache is a bounded in-memory read cache sitting in front of the data
// file directory, sized by Config.CacheSizeDocuments. A miss always falls
// through to readDocumentFile; the cache never becomes a source of truth.
type docCache struct {
	lru *lru.Cache[model.DocumentID, *model.Document]
}

// newDocCache builds a cache holding up to size documents. size<=0 disables
// caching entirely (every Get reads through to disk).
func newDocCache(size int) (*docCache, error) {
	if size <= 0 {
		return &docCache{}, nil
	}
	c, err := lru.New[model.DocumentID, *model.Document](size)
	if err != nil {
		return nil, err
	}
	return &docCache{lru: c}, nil
}

func (c *docCache) get(id model.DocumentID) (*model.Document, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Get(id)
}

func (c *docCache) put(d *model.Document) {
	if c.lru == nil {
		return
	}
	c.lru.Add(d.ID, d)
}

func (c *docCache) invalidate(id model.DocumentID) {
	if c.lru == nil {
		return
	}
	c.lru.Remove(id)
}
