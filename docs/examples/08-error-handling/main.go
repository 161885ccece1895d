package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/featurestore"
	"github.com/beetlebugorg/featurestore/pkg/filter"
	"github.com/paulmach/orb"
)

func main() {
	buoy := &feature.FeatureType{
		Name: "Buoy",
		Properties: []feature.PropertyDecl{
			{Name: "name", MinOccurs: 1, MaxOccurs: 1, Kind: feature.KindSimple},
			{Name: "position", MaxOccurs: 1, Kind: feature.KindGeometry, Geometry: feature.GeometryPoint},
		},
	}
	store, err := featurestore.New(feature.NewSchema(buoy), featurestore.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	tx, err := store.AcquireTransaction(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer tx.Rollback()

	// Missing mandatory property
	_, err = tx.PerformInsert(feature.NewCollection(buoy, feature.NewFeature("", buoy)), featurestore.GenerateNew)
	var validation *featurestore.ErrValidation
	if errors.As(err, &validation) {
		fmt.Printf("Validation: property %s: %s\n", validation.Property, validation.Reason)
	}

	// Unknown reference system
	_, err = tx.PerformInsert(feature.NewCollection(buoy, feature.NewFeature("", buoy,
		feature.Property{Name: "name", Value: "Lost"},
		feature.Property{Name: "position", Value: &feature.Geometry{CRS: "EPSG:99999", Value: orb.Point{0, 0}}},
	)), featurestore.GenerateNew)
	var crsErr *featurestore.ErrCRS
	if errors.As(err, &crsErr) {
		fmt.Println("CRS:", crsErr)
	}

	// Duplicate identifier
	first := feature.NewFeature("B1", buoy, feature.Property{Name: "name", Value: "One"})
	second := feature.NewFeature("B1", buoy, feature.Property{Name: "name", Value: "Two"})
	_, err = tx.PerformInsert(feature.NewCollection(buoy, first, second), featurestore.UseExisting)
	var dup *featurestore.ErrDuplicateID
	if errors.As(err, &dup) {
		fmt.Println("Duplicate:", dup.ID)
	}

	// Joins are not supported
	_, err = store.Query(ctx, featurestore.Query{TypeNames: []string{"Buoy", "Light"}})
	var unsupported *featurestore.ErrUnsupportedQuery
	if errors.As(err, &unsupported) {
		fmt.Println("Unsupported:", unsupported.Reason)
	}

	// Queries without a type need an id filter
	_, err = store.Query(ctx, featurestore.Query{Filter: filter.Equal("name", "One")})
	fmt.Println("Untyped query:", err)

	// A finished transaction cannot be reused
	if err := tx.Rollback(); err != nil {
		log.Fatal(err)
	}
	if _, err := tx.PerformDeleteByID([]string{"B1"}, ""); errors.Is(err, featurestore.ErrTransactionClosed) {
		fmt.Println("Closed:", err)
	}
}
