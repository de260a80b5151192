// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

//go:build integration

package cli_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const seedUsers = `
users:
  - name: Site Admin
    email: Admin@Example.com
    password: correct-horse-battery
    role: admin
  - name: Jo Traveller
    email: jo@example.com
    password: secret123
`

// tourbook runs the CLI with the test database configured.
func tourbook(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = "../../../cmd/tourbook"
	cmd.Env = append(cmd.Environ(), "TOURBOOK_DATABASE_URL="+env.connStr)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

var _ = Describe("CLI", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)
	})

	Describe("migrate", func() {
		It("applies and reports the schema", func() {
			output, err := tourbook(ctx, "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), "migrate failed: %s", output)
			Expect(output).To(ContainSubstring("Migrations completed successfully"))

			output, err = tourbook(ctx, "migrate", "version")
			Expect(err).NotTo(HaveOccurred(), "migrate version failed: %s", output)
			Expect(output).To(ContainSubstring("(clean)"))
			Expect(output).To(ContainSubstring("No pending migrations"))
		})
	})

	Describe("seed", func() {
		var seedFile string

		BeforeEach(func() {
			seedFile = filepath.Join(GinkgoT().TempDir(), "users.yaml")
			Expect(os.WriteFile(seedFile, []byte(seedUsers), 0o600)).To(Succeed())

			output, err := tourbook(ctx, "migrate")
			Expect(err).NotTo(HaveOccurred(), "migrate failed: %s", output)
		})

		It("creates the listed users with their roles", func() {
			output, err := tourbook(ctx, "seed", "--file", seedFile)
			Expect(err).NotTo(HaveOccurred(), "seed failed: %s", output)
			Expect(output).To(ContainSubstring("Seeding complete: 2 created, 0 skipped"))

			var role string
			err = env.pool.QueryRow(ctx,
				"SELECT role FROM users WHERE email = $1", "admin@example.com",
			).Scan(&role)
			Expect(err).NotTo(HaveOccurred())
			Expect(role).To(Equal("admin"))
		})

		It("is idempotent (running twice succeeds without duplicates)", func() {
			output, err := tourbook(ctx, "seed", "--file", seedFile)
			Expect(err).NotTo(HaveOccurred(), "first seed failed: %s", output)

			output, err = tourbook(ctx, "seed", "-f", seedFile)
			Expect(err).NotTo(HaveOccurred(), "second seed failed: %s", output)
			Expect(output).To(ContainSubstring("already exists, skipping"))
			Expect(output).To(ContainSubstring("0 created, 2 skipped"))

			var count int
			Expect(env.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)).To(Succeed())
			Expect(count).To(Equal(2))
		})

		It("stores passwords as argon2id digests", func() {
			output, err := tourbook(ctx, "seed", "--file", seedFile)
			Expect(err).NotTo(HaveOccurred(), "seed failed: %s", output)

			var hash string
			err = env.pool.QueryRow(ctx,
				"SELECT password_hash FROM users WHERE email = $1", "jo@example.com",
			).Scan(&hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(hash).To(HavePrefix("$argon2id$"))
			Expect(hash).NotTo(ContainSubstring("secret123"))
		})
	})
})
