package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/featurestore"
	"github.com/beetlebugorg/featurestore/pkg/filter"
)

var depthArea = &feature.FeatureType{
	Name: "DepthArea",
	Properties: []feature.PropertyDecl{
		{Name: "name", MinOccurs: 1, MaxOccurs: 1, Kind: feature.KindSimple},
		{Name: "minDepth", MinOccurs: 1, MaxOccurs: 1, Kind: feature.KindSimple},
	},
}

func area(name string, depth float64) *feature.Feature {
	return feature.NewFeature("", depthArea,
		feature.Property{Name: "name", Value: name},
		feature.Property{Name: "minDepth", Value: depth},
	)
}

func main() {
	store, err := featurestore.New(feature.NewSchema(depthArea), featurestore.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	tx, err := store.AcquireTransaction(ctx)
	if err != nil {
		log.Fatal(err)
	}
	_, err = tx.PerformInsert(feature.NewCollection(depthArea,
		area("Main Channel", 12.5),
		area("Shoal", 1.2),
		area("Anchorage North", 8),
		area("Anchorage South", 6.5),
	), featurestore.GenerateNew)
	if err != nil {
		log.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		log.Fatal(err)
	}

	// Deep anchorages, deepest first
	stream, err := store.Query(ctx, featurestore.Query{
		TypeNames: []string{"DepthArea"},
		Filter: filter.And(
			filter.NewLike("name", "Anchorage*"),
			filter.Greater("minDepth", 5),
		),
		SortBy: []filter.SortProperty{{Name: "minDepth", Descending: true}},
	})
	if err != nil {
		log.Fatal(err)
	}
	features, err := stream.Collect()
	if err != nil {
		log.Fatal(err)
	}
	for _, f := range features {
		name, _ := f.Value("name")
		depth, _ := f.Value("minDepth")
		fmt.Printf("%-16v %5.1fm\n", name, depth)
	}

	hits, err := store.QueryHits(ctx, featurestore.Query{
		TypeNames: []string{"DepthArea"},
		Filter:    filter.Less("minDepth", 2),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Shallow areas: %d\n", hits)
}
