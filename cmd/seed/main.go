package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"accountapi/internal/config"
	"accountapi/internal/platform/crypto"
	"accountapi/internal/platform/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// seedPassword is the password of every seeded account.
const seedPassword = "P4ssword"

func main() {
	var (
		count      = flag.Int("count", 25, "number of users to create")
		inactive   = flag.Int("inactive", 0, "how many of them stay inactive")
		configPath = flag.String("config", "", "path to a YAML config file")
	)
	flag.Parse()

	log := logger.New(os.Getenv("LOG_LEVEL"))
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer pool.Close()

	// One hash for all rows; bcrypt is slow on purpose.
	hash, err := crypto.NewBcryptHasher(bcrypt.DefaultCost).Hash(seedPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("hash seed password")
	}

	rows, err := seedRows(*count, *inactive, hash, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("build seed rows")
	}

	n, err := pool.CopyFrom(ctx,
		pgx.Identifier{"users"},
		[]string{"username", "email", "password_hash", "inactive", "activation_token", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("insert users")
	}
	log.Info().Int64("inserted", n).Str("password", seedPassword).Msg("seeded users")

	var total int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err == nil {
		log.Info().Int("total", total).Msg("users in database")
	}
}

// seedRows builds user1..userN; the last inactive of them keep an
// activation token so the activation flow can be tried by hand.
func seedRows(count, inactive int, hash string, now time.Time) ([][]any, error) {
	rows := make([][]any, 0, count)
	for i := 1; i <= count; i++ {
		var activation *string
		isInactive := i > count-inactive
		if isInactive {
			tok, err := crypto.RandomString(16)
			if err != nil {
				return nil, err
			}
			activation = &tok
		}
		rows = append(rows, []any{
			fmt.Sprintf("user%d", i),
			fmt.Sprintf("user%d@mail.com", i),
			hash,
			isInactive,
			activation,
			now,
			now,
		})
	}
	return rows, nil
}
