package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/featurestore"
	"github.com/paulmach/orb"
)

func main() {
	sounding := &feature.FeatureType{
		Name: "Sounding",
		Properties: []feature.PropertyDecl{
			{Name: "position", MinOccurs: 1, MaxOccurs: 1, Kind: feature.KindGeometry, Geometry: feature.GeometryPoint},
		},
	}
	store, err := featurestore.New(feature.NewSchema(sounding), featurestore.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup

	// Writers are serialized by the store; each batch is one transaction
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range 5 {
				tx, err := store.AcquireTransaction(ctx)
				if err != nil {
					log.Fatal(err)
				}
				fc := feature.NewCollection(sounding)
				for i := range 200 {
					x := float64(w*10 + batch)
					y := float64(i) / 10
					fc.Add(feature.NewFeature("", sounding, feature.Property{
						Name:  "position",
						Value: &feature.Geometry{CRS: "EPSG:4326", Value: orb.Point{x, y}},
					}))
				}
				if _, err := tx.PerformInsert(fc, featurestore.GenerateNew); err != nil {
					log.Fatal(err)
				}
				if err := tx.Commit(); err != nil {
					log.Fatal(err)
				}
			}
		}()
	}

	// Readers never block and only ever see committed batches
	done := make(chan struct{})
	go func() {
		box := feature.Envelope{MinX: 0, MinY: 0, MaxX: 50, MaxY: 20}
		for {
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond):
			}
			hits, err := store.QueryHits(ctx, featurestore.Query{TypeNames: []string{"Sounding"}, BBox: &box})
			if err != nil {
				log.Fatal(err)
			}
			if hits%200 != 0 {
				log.Fatalf("saw a partial batch: %d", hits)
			}
		}
	}()

	wg.Wait()
	close(done)
	fmt.Printf("Stored soundings: %d\n", store.Stats().Features["Sounding"])
}
