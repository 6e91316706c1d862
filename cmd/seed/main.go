package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"csms/internal/config"
	"csms/internal/db"
	"csms/internal/models"
	"csms/internal/repo"
	"csms/internal/security"
)

func main() {
	id := flag.String("id", "CP-123", "chargePointId")
	secret := flag.String("secret", "devsecret", "shared secret (stored hashed)")
	vendor := flag.String("vendor", "ABB", "vendor")
	model := flag.String("model", "Terra54", "model")
	tag := flag.String("tag", "", "optional idTag to provision")
	tagStatus := flag.String("tag_status", "Accepted", "idTag status (Accepted, Blocked, Expired, Invalid)")
	tagExpiry := flag.String("tag_expiry", "", "optional idTag expiry (RFC 3339)")
	parentTag := flag.String("parent_tag", "", "optional parent idTag")
	flag.Parse()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	points := repo.NewChargePointsRepo(d)
	tags := repo.NewIdTagsRepo(d)

	cp := models.ChargePoint{
		ID:         *id,
		Vendor:     *vendor,
		Model:      *model,
		Status:     "Available",
		BootStatus: "Pending",
	}
	if err := points.Upsert(ctx, cp); err != nil {
		log.Fatal(err)
	}
	if err := points.SetSecret(ctx, *id, security.HashSecret(*secret)); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("seeded charge point %v\n", *id)

	if *tag != "" {
		t := models.IdTag{Tag: *tag, Status: *tagStatus}
		if *tagExpiry != "" {
			exp, err := time.Parse(time.RFC3339, *tagExpiry)
			if err != nil {
				log.Fatalf("bad --tag_expiry: %v", err)
			}
			t.ExpiryDate = &exp
		}
		if *parentTag != "" {
			t.ParentIdTag = parentTag
		}
		if err := tags.Upsert(ctx, t); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("seeded id tag %v (%v)\n", *tag, *tagStatus)
	}
}
