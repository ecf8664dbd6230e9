package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskrelay/internal/platform/jsoncodec"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/schema"
	"github.com/phrazzld/taskrelay/internal/store"
)

// DefaultSchemaName is the document loaded when none is named.
const DefaultSchemaName = "default"

// SchemaStore keeps task schema documents in the task_schemas table.
type SchemaStore struct {
	db store.DBTX
}

// NewSchemaStore creates a SchemaStore using db.
func NewSchemaStore(db store.DBTX) *SchemaStore {
	return &SchemaStore{db: db}
}

// WithTx returns a SchemaStore that runs its queries on tx.
func (s *SchemaStore) WithTx(tx *sql.Tx) *SchemaStore {
	return &SchemaStore{db: tx}
}

// Load reads the named document. It returns store.ErrSchemaNotFound when no
// row exists.
func (s *SchemaStore) Load(ctx context.Context, name string) (*schema.Document, error) {
	log := logger.FromContextOrDefault(ctx, slog.Default())

	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM task_schemas WHERE name = $1`, name).Scan(&raw)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrSchemaNotFound, name)
		}
		log.Error("failed to load schema document", "name", name, "error", err)
		return nil, store.NewStoreError("schema", "load", "query failed", MapError(err))
	}

	var decoded map[string]any
	if err := jsoncodec.Unmarshal(raw, &decoded); err != nil {
		return nil, store.NewStoreError("schema", "load", "stored document is not valid JSON",
			fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
	}
	doc, err := schema.FromMap(decoded)
	if err != nil {
		return nil, store.NewStoreError("schema", "load", "stored document is malformed", err)
	}
	return doc, nil
}

// Save inserts or replaces the named document.
func (s *SchemaStore) Save(ctx context.Context, name string, doc *schema.Document) error {
	data, err := jsoncodec.Marshal(doc.ToMap())
	if err != nil {
		return store.NewStoreError("schema", "save", "could not encode document", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO task_schemas (name, document, created_at, updated_at)
		VALUES ($1, $2::jsonb, now(), now())
		ON CONFLICT (name) DO UPDATE
		SET document = EXCLUDED.document, updated_at = now()
	`, name, string(data))
	if err != nil {
		return store.NewStoreError("schema", "save", "upsert failed", MapError(err))
	}
	return CheckRowsAffected(result, "schema")
}

// Create inserts the named document. A taken name fails with an error
// wrapping store.ErrDuplicate.
func (s *SchemaStore) Create(ctx context.Context, name string, doc *schema.Document) error {
	data, err := jsoncodec.Marshal(doc.ToMap())
	if err != nil {
		return store.NewStoreError("schema", "create", "could not encode document", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_schemas (name, document, created_at, updated_at)
		VALUES ($1, $2::jsonb, now(), now())
	`, name, string(data))
	if err != nil {
		return store.NewStoreError("schema", "create", "insert failed", MapError(err))
	}
	return nil
}

// LoadDocument reads the named document inside a read-only transaction.
func LoadDocument(ctx context.Context, db store.TxBeginner, name string) (*schema.Document, error) {
	var doc *schema.Document
	err := store.RunInReadOnlyTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		doc, err = NewSchemaStore(tx).Load(ctx, name)
		return err
	})
	return doc, err
}

// SeedIfMissing stores doc under name unless a document already exists,
// all within one transaction. It reports whether doc was written. Losing a
// race against a concurrent seeder counts as "already exists".
func SeedIfMissing(ctx context.Context, db store.TxBeginner, name string, doc *schema.Document) (bool, error) {
	seeded := false
	err := store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM task_schemas WHERE name = $1)`, name).Scan(&exists); err != nil {
			return MapError(err)
		}
		if exists {
			return nil
		}
		if err := NewSchemaStore(tx).Create(ctx, name, doc); err != nil {
			return err
		}
		seeded = true
		return nil
	})
	if IsUniqueViolation(err) {
		logger.FromContextOrDefault(ctx, slog.Default()).Info("schema seeded concurrently", "name", name)
		return false, nil
	}
	return seeded, err
}
