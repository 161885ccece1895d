package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/featurestore"
	"github.com/beetlebugorg/featurestore/pkg/filter"
)

func main() {
	light := &feature.FeatureType{
		Name: "Light",
		Properties: []feature.PropertyDecl{
			{Name: "name", MinOccurs: 1, MaxOccurs: 1, Kind: feature.KindSimple},
			{Name: "color", MaxOccurs: 3, Kind: feature.KindSimple},
			{Name: "period", MaxOccurs: 1, Kind: feature.KindSimple},
		},
	}
	store, err := featurestore.New(feature.NewSchema(light), featurestore.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	tx, err := store.AcquireTransaction(ctx)
	if err != nil {
		log.Fatal(err)
	}
	_, err = tx.PerformInsert(feature.NewCollection(light,
		feature.NewFeature("L1", light,
			feature.Property{Name: "name", Value: "Harbor Entrance"},
			feature.Property{Name: "color", Value: "white"},
		),
	), featurestore.UseExisting)
	if err != nil {
		log.Fatal(err)
	}

	// Several changes applied in order to every matching feature
	updated, err := tx.PerformUpdate("Light", []featurestore.PropertyReplacement{
		{Name: "color", Value: "red", HasValue: true, Action: featurestore.InsertAfter},
		{Name: "period", Value: 4.0, HasValue: true},
	}, filter.NewIDFilter("L1"), "")
	if err != nil {
		log.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Updated: %v\n", updated)

	f := store.GetObjectByID("L1").(*feature.Feature)
	for _, p := range f.Props {
		fmt.Printf("  %-8s %v\n", p.Name, p.Value)
	}
}
