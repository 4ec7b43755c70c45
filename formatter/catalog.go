package formatter

import (
	"context"
	"sort"

	"github.com/hashicorp/go-memdb"
	"github.com/ridge/must/v2"
	"github.com/ridge/smcmon/protocol"
	"github.com/ridge/smcmon/query"
	"github.com/ridge/smcmon/session"
	"github.com/ridge/smcmon/tlog"
	"github.com/ridge/smcmon/wire"
	"go.uber.org/zap"
)

const fieldTable = "field"

var catalogSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		fieldTable: {
			Name: fieldTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "ID"},
				},
				"name": {
					Name:         "name",
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "Name"},
				},
				"pretty": {
					Name:         "pretty",
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "Pretty"},
				},
			},
		},
	},
}

// Resolver fetches the metadata of log fields from the server
type Resolver func(ctx context.Context, ids ...int) ([]wire.Field, error)

// SessionResolver resolves fields through the session
func SessionResolver(sess *session.Session, opts protocol.Options) Resolver {
	return func(ctx context.Context, ids ...int) ([]wire.Field, error) {
		return query.ResolveFieldIDs(ctx, sess, opts, ids...)
	}
}

// Catalog caches log field metadata. Fields missing from the catalog are
// fetched through the resolver. Safe for concurrent use.
type Catalog struct {
	db       *memdb.MemDB
	resolver Resolver
}

// NewCatalog creates an empty catalog. The resolver may be nil, in which
// case only fields added with Add are known.
func NewCatalog(resolver Resolver) *Catalog {
	return &Catalog{
		db:       must.OK1(memdb.NewMemDB(catalogSchema)),
		resolver: resolver,
	}
}

// Add stores fields, replacing known fields with the same id
func (c *Catalog) Add(fields ...wire.Field) {
	txn := c.db.Txn(true)
	defer txn.Abort()
	for _, f := range fields {
		must.OK(txn.Insert(fieldTable, f))
	}
	txn.Commit()
}

// Lookup returns the known fields among ids, in the order of ids, and the
// ids that are not known
func (c *Catalog) Lookup(ids ...int) (found []wire.Field, missing []int) {
	txn := c.db.Txn(false)
	for _, id := range ids {
		raw := must.OK1(txn.First(fieldTable, "id", id))
		if raw == nil {
			missing = append(missing, id)
			continue
		}
		found = append(found, raw.(wire.Field))
	}
	return found, missing
}

// ByName finds a field by its name, e.g. Src
func (c *Catalog) ByName(name string) (wire.Field, bool) {
	return c.first("name", name)
}

// ByPretty finds a field by its pretty name, e.g. Source
func (c *Catalog) ByPretty(pretty string) (wire.Field, bool) {
	return c.first("pretty", pretty)
}

func (c *Catalog) first(index string, value string) (wire.Field, bool) {
	raw := must.OK1(c.db.Txn(false).First(fieldTable, index, value))
	if raw == nil {
		return wire.Field{}, false
	}
	return raw.(wire.Field), true
}

// All returns every known field ordered by id
func (c *Catalog) All() []wire.Field {
	var fields []wire.Field
	iter := must.OK1(c.db.Txn(false).Get(fieldTable, "id"))
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		fields = append(fields, raw.(wire.Field))
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })
	return fields
}

// Resolve returns the fields for ids, asking the resolver for the ones not
// known yet. Ids the server does not know are left out.
func (c *Catalog) Resolve(ctx context.Context, ids ...int) ([]wire.Field, error) {
	found, missing := c.Lookup(ids...)
	if len(missing) == 0 || c.resolver == nil {
		return found, nil
	}

	tlog.Get(ctx).Debug("Resolving log fields", zap.Ints("ids", missing))
	resolved, err := c.resolver(ctx, missing...)
	if err != nil {
		return nil, err
	}
	c.Add(resolved...)

	found, _ = c.Lookup(ids...)
	return found, nil
}
