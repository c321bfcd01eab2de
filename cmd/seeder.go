package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-reconciliation/internal/intent"
)

var clearData bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		if clearData {
			for _, table := range []string{"credit_entries", "provider_notifications", "payment_intents", "accounts"} {
				if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
					log.Fatalf("failed to clear table %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		accounts := []struct {
			UserRef string
			Balance int64
		}{
			{"discord:111111111111111111", 0},
			{"discord:222222222222222222", 1500},
		}

		for _, a := range accounts {
			var exists int
			if err := db.QueryRow("SELECT 1 FROM accounts WHERE user_ref = $1", a.UserRef).Scan(&exists); err == nil {
				fmt.Println("account already exists:", a.UserRef)
				continue
			}

			if _, err := db.Exec(
				"INSERT INTO accounts (user_ref, balance_credits, created_at, updated_at) VALUES ($1, $2, now(), now())",
				a.UserRef, a.Balance,
			); err != nil {
				log.Fatalf("failed to insert account %s: %v", a.UserRef, err)
			}
			fmt.Println("Seeded account:", a.UserRef)
		}

		intents := []struct {
			UserRef  string
			Amount   int64
			Currency string
		}{
			{"discord:111111111111111111", 500, "USD"},
			{"discord:222222222222222222", 300, "USD"},
			{"discord:222222222222222222", 777, "USD"},
		}

		for _, it := range intents {
			intentID := intent.NewIntentID(time.Now().UTC())
			if _, err := db.Exec(
				"INSERT INTO payment_intents (intent_id, user_ref, amount_cents, currency, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, now())",
				intentID, it.UserRef, it.Amount, it.Currency, intent.StatusPending, time.Now().UTC(),
			); err != nil {
				log.Fatalf("failed to insert intent %s: %v", intentID, err)
			}
			fmt.Printf("Seeded pending intent %s for %s (%d %s cents)\n", intentID, it.UserRef, it.Amount, it.Currency)
		}

		fmt.Println("Seeding complete")
	},
}
