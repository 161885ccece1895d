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
	route := &feature.FeatureType{
		Name: "Route",
		Properties: []feature.PropertyDecl{
			{Name: "track", MinOccurs: 1, MaxOccurs: 1, Kind: feature.KindGeometry, Geometry: feature.GeometryCurve},
		},
	}

	// Arcs are linearized into 9 points each, then reprojected
	opts := featurestore.DefaultOptions()
	opts.StorageCRS = "EPSG:3857"
	opts.LinearizationPoints = 9
	store, err := featurestore.New(feature.NewSchema(route), opts)
	if err != nil {
		log.Fatal(err)
	}

	track := &feature.Geometry{
		CRS:   "EPSG:4326",
		Value: orb.LineString{{-71.0, 42.30}, {-70.95, 42.30}},
		Curve: feature.ArcString{{-70.95, 42.30}, {-70.925, 42.325}, {-70.90, 42.30}},
	}

	ctx := context.Background()
	tx, err := store.AcquireTransaction(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := tx.PerformInsert(feature.NewCollection(route,
		feature.NewFeature("", route, feature.Property{Name: "track", Value: track}),
	), featurestore.GenerateNew); err != nil {
		log.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		log.Fatal(err)
	}

	line := track.Value.(orb.LineString)
	fmt.Printf("Track %s in %s: %d points\n", track.ID, track.CRS, len(line))
	for _, p := range line {
		fmt.Printf("  %.1f, %.1f\n", p[0], p[1])
	}
}
