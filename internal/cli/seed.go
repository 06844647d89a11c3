package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/molbhav/molbhav/internal/db"
	"github.com/molbhav/molbhav/internal/nego"
	"github.com/molbhav/molbhav/internal/store"
)

// Demo catalog. Upserts are idempotent, so re-seeding is safe.
var seedProducts = []nego.Product{
	{
		ID: "iphone-15", Name: "iPhone 15 (128 GB)", Category: "electronics",
		AnchorPrice: 79900, CostPrice: 65000, MinMargin: 0.05, TargetMargin: 0.15,
		Metadata: map[string]any{"brand": "Apple", "color": "Black"},
	},
	{
		ID: "nike-air-max", Name: "Nike Air Max 270", Category: "footwear",
		AnchorPrice: 12995, CostPrice: 7000, MinMargin: 0.10, TargetMargin: 0.30,
		Metadata: map[string]any{"brand": "Nike", "size": "UK 9"},
	},
	{
		ID: "samsung-tv-55", Name: "Samsung Crystal 4K 55\" Smart TV", Category: "electronics",
		AnchorPrice: 54990, CostPrice: 38000, MinMargin: 0.08, TargetMargin: 0.20,
		Metadata: map[string]any{"brand": "Samsung", "display": "4K UHD"},
	},
	{
		ID: "levis-501", Name: "Levi's 501 Original Jeans", Category: "clothing",
		AnchorPrice: 4999, CostPrice: 2200, MinMargin: 0.12, TargetMargin: 0.35,
		Metadata: map[string]any{"brand": "Levi's", "fit": "Regular"},
	},
	{
		ID: "boat-airdopes", Name: "boAt Airdopes 141", Category: "electronics",
		AnchorPrice: 1499, CostPrice: 700, MinMargin: 0.15, TargetMargin: 0.40,
		Metadata: map[string]any{"brand": "boAt"},
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo products and promotions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		durable := store.NewDurable(pool)
		for i := range seedProducts {
			if err := durable.UpsertProduct(ctx, &seedProducts[i]); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		promos := []nego.Promotion{
			{
				ID: "festive-flat-200", ProductID: "__all__", DiscountType: "flat",
				DiscountValue: 200, MinPrice: 2000, MinRound: 4, Priority: 10,
				Active: true, ValidFrom: now, ValidUntil: now.AddDate(0, 1, 0),
				Description: "festive season flat sweetener",
			},
			{
				ID: "electronics-3pct", ProductID: "__all__", Category: "electronics",
				DiscountType: "percentage", DiscountValue: 3, MinPrice: 10000, MinRound: 6,
				Priority: 20, Active: true, ValidFrom: now, ValidUntil: now.AddDate(0, 1, 0),
				Description: "late-game electronics nudge",
			},
		}
		for i := range promos {
			if err := durable.UpsertPromotion(ctx, &promos[i]); err != nil {
				return err
			}
		}

		fmt.Printf("seeded %d products, %d promotions\n", len(seedProducts), len(promos))
		return nil
	},
}
