// Command bootstrap-user provisions a user with a budget and an API key
// directly against the database. Intended for first-run setup and local
// development; normal accounts are provisioned through social login.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/anyllm/gateway/internal/auth"
	"github.com/anyllm/gateway/internal/model"
	"github.com/anyllm/gateway/internal/repository"
)

type output struct {
	UserID    string `json:"user_id"`
	BudgetID  string `json:"budget_id"`
	KeyID     string `json:"key_id"`
	Key       string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		alias       = flag.String("alias", "bootstrap", "User alias")
		keyName     = flag.String("key-name", "bootstrap", "API key name")
		maxBudget   = flag.Float64("max-budget", 0, "Max budget (0 = unlimited)")
		durationSec = flag.Int64("budget-duration-sec", 2592000, "Budget window in seconds")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	now := time.Now().UTC()

	budget := &model.Budget{
		ID:          uuid.NewString(),
		DurationSec: *durationSec,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if *maxBudget > 0 {
		budget.MaxBudget = maxBudget
	}
	if err := repo.CreateBudget(ctx, budget); err != nil {
		fmt.Fprintln(os.Stderr, "create budget:", err)
		os.Exit(1)
	}

	nextReset := now.Add(budget.Duration())
	user := &model.User{
		ID:                uuid.NewString(),
		BudgetID:          budget.ID,
		Alias:             *alias,
		BudgetStartedAt:   &now,
		NextBudgetResetAt: &nextReset,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		fmt.Fprintln(os.Stderr, "create user:", err)
		os.Exit(1)
	}

	generated, err := auth.GenerateAPIKey(auth.EnvLive)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate api key:", err)
		os.Exit(1)
	}

	apiKey := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		Name:      *keyName,
		IsActive:  true,
		CreatedAt: now,
	}
	if err := repo.CreateAPIKey(ctx, apiKey); err != nil {
		fmt.Fprintln(os.Stderr, "create api key:", err)
		os.Exit(1)
	}

	result := output{
		UserID:    user.ID,
		BudgetID:  budget.ID,
		KeyID:     apiKey.ID,
		Key:       generated.Plaintext,
		KeyPrefix: generated.Prefix,
	}

	if *format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintln(os.Stderr, "encode output:", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("user_id:   ", result.UserID)
	fmt.Println("budget_id: ", result.BudgetID)
	fmt.Println("key_id:    ", result.KeyID)
	fmt.Println("key_prefix:", result.KeyPrefix)
	fmt.Println("api_key:   ", result.Key)
	fmt.Println()
	fmt.Println("Store the api_key now; the plaintext is not retrievable again.")
}
