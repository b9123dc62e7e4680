// Package clients defines the collaborator-service capabilities the order
// composition core consumes. The core never mutates collaborator data; it only
// checks existence at write time and fetches snapshots for presentation.
package clients

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the collaborator answered and the entity does not exist.
	ErrNotFound = errors.New("referenced entity not found")
	// ErrUnavailable means the collaborator could not answer; callers must not
	// conclude the entity is missing.
	ErrUnavailable = errors.New("collaborator service unavailable")
)

type CustomerSnapshot struct {
	CustomerID string `json:"customerId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
}

type CatalogSnapshot struct {
	CatalogID   string `json:"catalogId"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type WatchSnapshot struct {
	WatchID   string `json:"watchId"`
	CatalogID string `json:"catalogId"`
	Model     string `json:"model"`
	Material  string `json:"material"`
	Quantity  int    `json:"quantity"`
}

type ServicePlanSnapshot struct {
	PlanID          string `json:"planId"`
	CoverageDetails string `json:"coverageDetails"`
	ExpirationDate  string `json:"expirationDate"`
}

type CustomerClient interface {
	Exists(ctx context.Context, customerID string) (bool, error)
	Snapshot(ctx context.Context, customerID string) (*CustomerSnapshot, error)
}

type CatalogClient interface {
	Exists(ctx context.Context, catalogID string) (bool, error)
	Snapshot(ctx context.Context, catalogID string) (*CatalogSnapshot, error)
}

type WatchClient interface {
	Exists(ctx context.Context, watchID string) (bool, error)
	Snapshot(ctx context.Context, watchID string) (*WatchSnapshot, error)
}

type ServicePlanClient interface {
	Exists(ctx context.Context, planID string) (bool, error)
	Snapshot(ctx context.Context, planID string) (*ServicePlanSnapshot, error)
}
