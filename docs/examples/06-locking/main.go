package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/featurestore"
	"github.com/beetlebugorg/featurestore/pkg/lock"
)

func main() {
	wreck := &feature.FeatureType{
		Name:       "Wreck",
		Properties: []feature.PropertyDecl{{Name: "name", MaxOccurs: 1, Kind: feature.KindSimple}},
	}

	locks := lock.NewMemoryManager(nil)
	opts := featurestore.DefaultOptions()
	opts.LockManager = locks
	store, err := featurestore.New(feature.NewSchema(wreck), opts)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	tx, err := store.AcquireTransaction(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := tx.PerformInsert(feature.NewCollection(wreck,
		feature.NewFeature("W1", wreck, feature.Property{Name: "name", Value: "Portland"}),
	), featurestore.UseExisting); err != nil {
		log.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		log.Fatal(err)
	}

	// Lock the wreck for ten minutes
	if _, err := locks.Acquire("survey-42", 10*time.Minute, "W1"); err != nil {
		log.Fatal(err)
	}

	tx, err = store.AcquireTransaction(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer tx.Rollback()

	_, err = tx.PerformDeleteByID([]string{"W1"}, "")
	if errors.Is(err, featurestore.ErrMissingLockID) {
		fmt.Println("Delete without lock id refused:", err)
	}

	n, err := tx.PerformDeleteByID([]string{"W1"}, "survey-42")
	if err != nil {
		log.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Deleted %d feature(s); still locked: %v\n", n, locks.Locked("survey-42"))
}
