package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/p2pex/internal/config"
	"github.com/xtrntr/p2pex/internal/db"
	"github.com/xtrntr/p2pex/internal/models"
)

// Seed the database with development data: an admin, an agent, two funded
// customers, two currencies and an approved verification for one customer.
func main() {
	cfg := config.Load()
	log := config.NewLogger("seed", cfg.LogLevel)
	ctx := context.Background()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	// Apply the schema first so seeding works on a fresh database.
	migration, err := os.ReadFile("migrations/001_init.sql")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read migration")
	}
	if _, err := database.Pool.Exec(ctx, string(migration)); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migration")
	}

	var count int
	if err := database.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		log.Fatal().Err(err).Msg("failed to check users")
	}
	if count > 0 {
		fmt.Printf("Database already has %d users. No need to seed.\n", count)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash password")
	}

	users := []models.User{
		{Email: "admin@p2pex.dev", Username: "admin", Role: models.RoleAdmin, IsActive: true},
		{Email: "agent@p2pex.dev", Username: "agent1", Role: models.RoleAgent, IsActive: true},
		{Email: "alice@p2pex.dev", Username: "alice", Role: models.RoleCustomer, IsActive: true},
		{Email: "bob@p2pex.dev", Username: "bob", Role: models.RoleCustomer, IsActive: true},
	}
	ids := make(map[string]int)
	for _, u := range users {
		u.PasswordHash = string(hash)
		created, err := database.CreateUser(ctx, &u)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.Username).Msg("failed to create user")
		}
		ids[u.Username] = created.ID
		fmt.Printf("Created %s (%s) id=%d\n", created.Username, created.Role, created.ID)
	}

	currencies := []models.Currency{
		{
			Name: "US Dollar", Symbol: "USD", IsActive: true,
			MinOrderAmount: decimal.NewFromInt(1),
			MaxOrderAmount: decimal.NewFromInt(100000),
			CurrentPrice:   decimal.NewFromInt(1),
			TradingFee:     decimal.NewFromFloat(0.01),
		},
		{
			Name: "Euro", Symbol: "EUR", IsActive: true,
			MinOrderAmount: decimal.NewFromInt(1),
			MaxOrderAmount: decimal.NewFromInt(100000),
			CurrentPrice:   decimal.NewFromFloat(1.08),
			TradingFee:     decimal.NewFromFloat(0.01),
		},
	}
	currencyIDs := make([]int, 0, len(currencies))
	for _, c := range currencies {
		created, err := database.CreateCurrency(ctx, &c)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", c.Symbol).Msg("failed to create currency")
		}
		currencyIDs = append(currencyIDs, created.ID)
		fmt.Printf("Created currency %s id=%d\n", created.Symbol, created.ID)
	}

	// Fund the customers and the agent in USD.
	for _, username := range []string{"alice", "bob", "agent1"} {
		wallet, err := database.GetOrCreateWallet(ctx, ids[username], currencyIDs[0])
		if err != nil {
			log.Fatal().Err(err).Str("username", username).Msg("failed to create wallet")
		}
		balance := decimal.NewFromInt(1000)
		if err := database.UpdateWalletBalances(ctx, wallet.ID, balance, decimal.Zero); err != nil {
			log.Fatal().Err(err).Str("username", username).Msg("failed to fund wallet")
		}
		fmt.Printf("Funded %s wallet %d with %s USD\n", username, wallet.ID, balance)
	}

	// Give alice an approved tier-2 verification.
	_, err = database.Pool.Exec(ctx, `
		INSERT INTO kyc_records (user_id, level, status, document_type, document_number,
		                         first_name, last_name, country, verified_at, expires_at)
		VALUES ($1, 2, 'approved', 'passport', 'P1234567', 'Alice', 'Example', 'US',
		        NOW(), NOW() + INTERVAL '1 year')`,
		ids["alice"])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kyc record")
	}
	fmt.Println("Approved alice at tier 2")

	fmt.Println("Seed complete.")
}
