package exec

import (
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/txn"
)

// ExecutorContext bundles the per-statement state every operator needs:
// the catalog to resolve tables/indexes by name, the transaction the
// statement runs under, and the version store that reconstructs
// historical tuples for MVCC reads. One ExecutorContext is shared by every
// operator in a single plan tree.
type ExecutorContext struct {
	Catalog      *catalog.Catalog
	Txn          *txn.Transaction
	TxnMgr       *txn.Manager
	VersionStore *txn.VersionStore
}

// NewExecutorContext wires a context from a transaction manager's running
// transaction and the catalog it executes against.
func NewExecutorContext(cat *catalog.Catalog, mgr *txn.Manager, vs *txn.VersionStore, t *txn.Transaction) *ExecutorContext {
	return &ExecutorContext{Catalog: cat, Txn: t, TxnMgr: mgr, VersionStore: vs}
}
