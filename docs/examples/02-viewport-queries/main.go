package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/featurestore"
	"github.com/paulmach/orb"
)

var buoy = &feature.FeatureType{
	Name: "Buoy",
	Properties: []feature.PropertyDecl{
		{Name: "name", MinOccurs: 1, MaxOccurs: 1, Kind: feature.KindSimple},
		{Name: "position", MaxOccurs: 1, Kind: feature.KindGeometry, Geometry: feature.GeometryPoint},
	},
}

func at(name string, lon, lat float64) *feature.Feature {
	return feature.NewFeature("", buoy,
		feature.Property{Name: "name", Value: name},
		feature.Property{Name: "position", Value: &feature.Geometry{CRS: "EPSG:4326", Value: orb.Point{lon, lat}}},
	)
}

func main() {
	// Store everything in Web Mercator
	opts := featurestore.DefaultOptions()
	opts.StorageCRS = "EPSG:3857"
	store, err := featurestore.New(feature.NewSchema(buoy), opts)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	tx, err := store.AcquireTransaction(ctx)
	if err != nil {
		log.Fatal(err)
	}
	_, err = tx.PerformInsert(feature.NewCollection(buoy,
		at("Boston Light", -70.89, 42.33),
		at("Graves Light", -70.87, 42.36),
		at("Nantucket", -70.07, 41.29),
	), featurestore.GenerateNew)
	if err != nil {
		log.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		log.Fatal(err)
	}

	env, _ := store.Envelope("Buoy")
	fmt.Printf("Buoy envelope (EPSG:3857): [%.0f,%.0f] to [%.0f,%.0f]\n", env.MinX, env.MinY, env.MaxX, env.MaxY)

	// Viewport in WGS84, transformed by the store before hitting the index
	viewport := feature.Envelope{MinX: -71.0, MinY: 42.2, MaxX: -70.7, MaxY: 42.5}
	stream, err := store.Query(ctx, featurestore.Query{
		TypeNames: []string{"Buoy"},
		BBox:      &viewport,
		BBoxCRS:   "urn:ogc:def:crs:EPSG::4326",
	})
	if err != nil {
		log.Fatal(err)
	}
	features, err := stream.Collect()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Buoys in Boston Harbor: %d\n", len(features))
	for _, f := range features {
		name, _ := f.Value("name")
		fmt.Printf("  %v\n", name)
	}
}
