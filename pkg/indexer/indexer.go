// pkg/indexer/indexer.go

// Package indexer builds the supporting and uniqueness indexes on classified output.
package indexer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/store"
)

// Index names
const (
	ValidityIndex = "idx_validity"
	IdentityIndex = "idx_identity_unique"
)

// ValiditySpec is the non-unique index on the working partition's validity flag
var ValiditySpec = store.IndexSpec{
	Name: ValidityIndex,
	Keys: []string{"validity"},
}

// IdentitySpec is the unique index over the identity triple of the valid partition
var IdentitySpec = store.IndexSpec{
	Name:   IdentityIndex,
	Keys:   []string{"cpf", "card_number", "corp"},
	Unique: true,
}

// Builder creates indexes on date-stamped partitions
type Builder struct {
	store  store.PartitionStore
	logger *zap.Logger
}

// NewBuilder creates a new index builder
func NewBuilder(partitions store.PartitionStore, logger *zap.Logger) *Builder {
	return &Builder{store: partitions, logger: logger.Named("indexer")}
}

// EnsureValidityIndex indexes the validity flag of working
func (b *Builder) EnsureValidityIndex(ctx context.Context, working string) error {
	return b.ensure(ctx, working, ValiditySpec)
}

// EnsureIdentityIndex enforces uniqueness of (cpf, card_number, corp) on valid.
// Documents already written are left in place when it fails.
func (b *Builder) EnsureIdentityIndex(ctx context.Context, valid string) error {
	return b.ensure(ctx, valid, IdentitySpec)
}

// EnsureAll builds both indexes, attempting the second even when the first fails
func (b *Builder) EnsureAll(ctx context.Context, working, valid string) error {
	return errors.Join(
		b.EnsureValidityIndex(ctx, working),
		b.EnsureIdentityIndex(ctx, valid),
	)
}

func (b *Builder) ensure(ctx context.Context, partition string, spec store.IndexSpec) error {
	if err := b.store.EnsureIndex(ctx, partition, spec); err != nil {
		b.logger.Error("Failed to build index",
			zap.String("partition", partition),
			zap.String("index", spec.Name),
			zap.Error(err))
		return err
	}

	b.logger.Info("Index ready",
		zap.String("partition", partition),
		zap.String("index", spec.Name),
		zap.Bool("unique", spec.Unique))
	return nil
}
