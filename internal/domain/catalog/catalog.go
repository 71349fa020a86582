// Package catalog holds the priced-item catalog: operations and materials,
// their per-supplier price snapshots, learned supplier aliases and price-list
// versions. The import pipeline both reads it (matching) and writes it
// (execution).
package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemKind discriminates the two priced-item families.
type ItemKind string

const (
	KindOperations ItemKind = "operations"
	KindMaterials  ItemKind = "materials"
)

// Valid reports whether the kind is one of the two known families.
func (k ItemKind) Valid() bool {
	return k == KindOperations || k == KindMaterials
}

// ItemRef addresses one catalog item without carrying its payload.
type ItemRef struct {
	Kind ItemKind  `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// Item is a priced catalog entry. UserID is nil for system-wide items.
type Item struct {
	ID             uuid.UUID
	Kind           ItemKind
	UserID         *uuid.UUID
	Name           string
	NormalizedName string
	Unit           *string
	Category       *string
	CreatedAt      time.Time
}

// Ref returns the item's address.
func (i *Item) Ref() ItemRef {
	return ItemRef{Kind: i.Kind, ID: i.ID}
}

// Supplier is the external party a price list belongs to.
type Supplier struct {
	ID   uuid.UUID
	Name string
}

// VersionStatus is the lifecycle of a price-list version.
type VersionStatus string

const (
	VersionDraft    VersionStatus = "draft"
	VersionActive   VersionStatus = "active"
	VersionArchived VersionStatus = "archived"
)

// PriceListVersion groups snapshots written by one import into a versioned,
// supplier-attributed price list. Exactly one version per supplier and kind
// is active at a time.
type PriceListVersion struct {
	ID         uuid.UUID
	SupplierID uuid.UUID
	Kind       ItemKind
	Name       string
	Status     VersionStatus
	CreatedAt  time.Time
}

// AliasConfidence records how an alias association was established.
type AliasConfidence string

const (
	ConfidenceManual    AliasConfidence = "manual"
	ConfidenceAutoExact AliasConfidence = "auto_exact"
	ConfidenceAutoFuzzy AliasConfidence = "auto_fuzzy"
)

// Alias is a learned mapping from a supplier's external identity (SKU, or a
// stable hash of the normalized row name) to one internal item. It is the
// cache of past human decisions the matcher consults first.
type Alias struct {
	ID           uuid.UUID
	SupplierID   uuid.UUID
	ExternalKey  string
	ExternalName string
	Item         ItemRef
	SupplierUnit *string
	InternalUnit *string
	Conversion   decimal.Decimal
	Confidence   AliasConfidence
	UseCount     int
	FirstSeen    time.Time
	LastSeen     time.Time
}

// PriceType distinguishes retail from wholesale quotes inside one version.
type PriceType string

const (
	PriceRetail    PriceType = "retail"
	PriceWholesale PriceType = "wholesale"
)

// PriceSnapshot is one row's price inside one price-list version, immutable
// by convention. ItemID is nil for rows that never linked to a catalog item;
// those are keyed by SourceName instead so the audit trail survives.
type PriceSnapshot struct {
	ID            uuid.UUID
	SupplierID    uuid.UUID
	VersionID     uuid.UUID
	ItemKind      ItemKind
	ItemID        *uuid.UUID
	SourceName    string
	SourceKey     *string
	SourcePrice   decimal.Decimal
	SourceUnit    *string
	InternalUnit  *string
	Conversion    decimal.Decimal
	PricePerUnit  decimal.Decimal
	Currency      string
	PriceType     PriceType
	SourceRow     int
	Confidence    AliasConfidence
	CreatedAt     time.Time
}

var (
	ErrNotFound       = errors.New("catalog: not found")
	ErrZeroConversion = errors.New("catalog: conversion factor must be positive")
)

// ComputePerUnit derives the price per internal unit. A non-positive
// conversion factor has no defined result and is refused.
func ComputePerUnit(sourcePrice, conversion decimal.Decimal) (decimal.Decimal, error) {
	if conversion.Sign() <= 0 {
		return decimal.Zero, ErrZeroConversion
	}
	return sourcePrice.DivRound(conversion, 6), nil
}
