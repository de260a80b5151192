// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/auth/postgres"
	"github.com/tourbook/tourbook/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// seedFile is the YAML document read by the seed command.
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	Photo    string `yaml:"photo"`
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create user accounts from a YAML file",
		Long: `Creates the user accounts listed in a YAML file, typically an initial admin.
This command is idempotent - accounts whose email is already registered are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.file, "file", "f", "", "YAML file listing users to create")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSeed(cmd *cobra.Command, sc *seedConfig) error {
	users, err := readSeedFile(sc.file)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	databaseURL, err := requireDatabaseURL(cfg)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), sc.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	poolCfg := cfg.Pool()
	poolCfg.URL = databaseURL
	pool, err := store.Connect(ctx, poolCfg, slog.Default())
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	hasher, err := auth.NewArgon2idHasher(cfg.PasswordHasher())
	if err != nil {
		return err
	}

	created, err := seedUsers(ctx, postgres.NewUserRepository(pool), hasher, users, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	cmd.Printf("Seeding complete: %d created, %d skipped\n", created, len(users)-created)
	return nil
}

func readSeedFile(path string) ([]seedUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("SEED_FILE_UNREADABLE").With("file", path).Wrap(err)
	}
	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, oops.Code("SEED_FILE_INVALID").With("file", path).Wrap(err)
	}
	if len(doc.Users) == 0 {
		return nil, oops.Code("SEED_FILE_INVALID").With("file", path).Errorf("no users listed")
	}
	return doc.Users, nil
}

// seedUsers stores each user that is not registered yet and returns how many
// were created. Input is validated like a signup.
func seedUsers(ctx context.Context, repo auth.UserRepository, hasher auth.PasswordHasher, users []seedUser, out io.Writer) (int, error) {
	validator := auth.NewValidator()
	created := 0

	for i, u := range users {
		role := auth.RoleUser
		if u.Role != "" {
			r, err := auth.ParseRole(u.Role)
			if err != nil {
				return created, oops.Code("SEED_INVALID").With("index", i).With("role", u.Role).Wrap(err)
			}
			role = r
		}

		in := auth.SignupInput{
			Name:            u.Name,
			Email:           u.Email,
			Password:        u.Password,
			PasswordConfirm: u.Password,
			Photo:           u.Photo,
		}
		in.Normalize()
		if err := validator.Struct(ctx, in); err != nil {
			return created, oops.With("index", i).With("email", in.Email).Wrap(err)
		}

		hash, err := hasher.Hash(ctx, in.Password)
		if err != nil {
			return created, err
		}
		rec, err := auth.NewUserRecord(in, hash, time.Now().UTC())
		if err != nil {
			return created, err
		}
		rec.Role = role

		if err := repo.Create(ctx, rec); err != nil {
			if errors.Is(err, auth.ErrDuplicateEmail) {
				_, _ = io.WriteString(out, "User "+in.Email+" already exists, skipping\n")
				continue
			}
			return created, oops.Code("SEED_FAILED").With("email", in.Email).Wrap(err)
		}

		created++
		_, _ = io.WriteString(out, "Created "+string(role)+" "+in.Email+"\n")
		slog.Info("Seeded user", "user_id", rec.ID.String(), "role", role)
	}
	return created, nil
}
