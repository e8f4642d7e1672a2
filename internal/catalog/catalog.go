package catalog

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// OID identifies a table or index. Always derived from a fresh uuid (callers
// cannot supply their own), the way the teacher derives surrogate
// identifiers in internal/storage/uuid_helpers.go.
type OID string

func newOID() OID { return OID(uuid.NewString()) }

// TupleHeap is the storage surface a TableInfo wraps: just enough for the
// catalog to hand executors a concrete table to scan, without catalog
// importing the heap package (which itself depends on catalog.Schema,
// and would otherwise form an import cycle).
type TupleHeap interface {
	Name() string
}

// Index is the surface an IndexInfo wraps, mirroring TupleHeap's role for
// index structures (avoids catalog importing bplustree).
type Index interface {
	Name() string
}

// TableInfo pairs a table's name and schema with its storage.
type TableInfo struct {
	OID    OID
	Name   string
	Schema *Schema
	Heap   TupleHeap
}

// IndexInfo pairs an index's metadata with its storage.
type IndexInfo struct {
	OID           OID
	Name          string
	TableName     string
	KeySchema     *Schema
	IsPrimaryKey  bool
	Index         Index
}

// Catalog is an in-memory registry of tables and indexes, guarded by a
// single RWMutex the way the teacher's internal/storage/catalog.go guards
// its table map.
type Catalog struct {
	mu      sync.RWMutex
	tables  map[OID]*TableInfo
	byName  map[string]OID
	indexes map[OID]*IndexInfo
	idxByTable map[string][]OID
}

func NewCatalog() *Catalog {
	return &Catalog{
		tables:     make(map[OID]*TableInfo),
		byName:     make(map[string]OID),
		indexes:    make(map[OID]*IndexInfo),
		idxByTable: make(map[string][]OID),
	}
}

// CreateTable registers a new table. Returns an error if the name is
// already taken.
func (c *Catalog) CreateTable(name string, schema *Schema, heap TupleHeap) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}
	oid := newOID()
	info := &TableInfo{OID: oid, Name: name, Schema: schema, Heap: heap}
	c.tables[oid] = info
	c.byName[name] = oid
	return info, nil
}

// GetTable looks up a table by oid.
func (c *Catalog) GetTable(oid OID) (*TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tables[oid]
	return info, ok
}

// GetTableByName looks up a table by name.
func (c *Catalog) GetTableByName(name string) (*TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	oid, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return c.tables[oid], true
}

// CreateIndex registers a new index over tableName.
func (c *Catalog) CreateIndex(name, tableName string, keySchema *Schema, idx Index, isPrimaryKey bool) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[tableName]; !exists {
		return nil, fmt.Errorf("catalog: cannot index unknown table %q", tableName)
	}
	oid := newOID()
	info := &IndexInfo{
		OID:          oid,
		Name:         name,
		TableName:    tableName,
		KeySchema:    keySchema,
		IsPrimaryKey: isPrimaryKey,
		Index:        idx,
	}
	c.indexes[oid] = info
	c.idxByTable[tableName] = append(c.idxByTable[tableName], oid)
	return info, nil
}

// GetIndex looks up an index by oid.
func (c *Catalog) GetIndex(oid OID) (*IndexInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.indexes[oid]
	return info, ok
}

// GetTableIndexes returns every index registered over tableName.
func (c *Catalog) GetTableIndexes(tableName string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	oids := c.idxByTable[tableName]
	out := make([]*IndexInfo, 0, len(oids))
	for _, oid := range oids {
		out = append(out, c.indexes[oid])
	}
	return out
}
