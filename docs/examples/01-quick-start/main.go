package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/featurestore"
	"github.com/paulmach/orb"
)

func main() {
	// Declare the application schema
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

	// Insert inside a transaction
	ctx := context.Background()
	tx, err := store.AcquireTransaction(ctx)
	if err != nil {
		log.Fatal(err)
	}
	ids, err := tx.PerformInsert(feature.NewCollection(buoy,
		feature.NewFeature("", buoy,
			feature.Property{Name: "name", Value: "Boston Light"},
			feature.Property{Name: "position", Value: &feature.Geometry{CRS: "EPSG:4326", Value: orb.Point{-70.89, 42.33}}},
		),
	), featurestore.GenerateNew)
	if err != nil {
		log.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Inserted: %v\n", ids)

	// Read it back
	stream, err := store.Query(ctx, featurestore.Query{TypeNames: []string{"Buoy"}})
	if err != nil {
		log.Fatal(err)
	}
	defer stream.Close()
	for f, ok := stream.Next(); ok; f, ok = stream.Next() {
		name, _ := f.Value("name")
		fmt.Printf("%s: %v\n", f.ID, name)
	}
	if err := stream.Err(); err != nil {
		log.Fatal(err)
	}
}
