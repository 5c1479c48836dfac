//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
)

// recordingSender captures the last code handed to the delivery boundary.
type recordingSender struct {
	mu   sync.Mutex
	code string
}

func (s *recordingSender) Send(_ context.Context, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	return nil
}

func (s *recordingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

var _ = Describe("Postgres repositories", Ordered, func() {
	var (
		ctx       context.Context
		container testcontainers.Container
		pool      *pgxpool.Pool
		users     *postgres.UserRepository
		otps      *postgres.OTPChallengeRepository
	)

	BeforeAll(func() {
		ctx = context.Background()

		pg, err := pgcontainer.Run(ctx,
			"postgres:16-alpine",
			pgcontainer.WithDatabase("gatehouse"),
			pgcontainer.WithUsername("test"),
			pgcontainer.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())
		container = pg

		connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := postgres.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = postgres.Connect(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())

		users = postgres.NewUserRepository(pool)
		otps = postgres.NewOTPChallengeRepository(pool)
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	Describe("UserRepository", func() {
		It("inserts and retrieves a user", func() {
			id, err := users.Insert(ctx, &auth.User{
				Email:        "grace@example.com",
				PasswordHash: "$argon2id$hash",
				CreatedAt:    time.Now().UTC(),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(HaveLen(26))

			byEmail, err := users.FindByEmail(ctx, "grace@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(byEmail.ID).To(Equal(id))

			byID, err := users.FindByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(byID.Email).To(Equal("grace@example.com"))
		})

		It("rejects a duplicate email", func() {
			_, err := users.Insert(ctx, &auth.User{
				Email:        "grace@example.com",
				PasswordHash: "$argon2id$other",
				CreatedAt:    time.Now().UTC(),
			})
			Expect(err).To(MatchError(auth.ErrDuplicateEmail))
		})

		It("updates a password hash", func() {
			user, err := users.FindByEmail(ctx, "grace@example.com")
			Expect(err).NotTo(HaveOccurred())

			Expect(users.UpdatePasswordHash(ctx, user.ID, "$argon2id$rotated")).To(Succeed())

			updated, err := users.FindByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.PasswordHash).To(Equal("$argon2id$rotated"))
		})

		It("reports missing users as not found", func() {
			_, err := users.FindByEmail(ctx, "nobody@example.com")
			Expect(err).To(MatchError(auth.ErrNotFound))

			err = users.UpdatePasswordHash(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", "$argon2id$x")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("OTPChallengeRepository", func() {
		var userID string

		BeforeAll(func() {
			id, err := users.Insert(ctx, &auth.User{
				Email:        "otp@example.com",
				PasswordHash: "$argon2id$hash",
				CreatedAt:    time.Now().UTC(),
			})
			Expect(err).NotTo(HaveOccurred())
			userID = id
		})

		It("stores and consumes a challenge exactly once", func() {
			expires := time.Now().Add(10 * time.Minute).UTC()
			Expect(otps.Put(ctx, userID, &auth.OTPChallenge{
				CodeHash:  "$argon2id$code",
				ExpiresAt: expires,
			})).To(Succeed())

			challenge, err := otps.GetAndInvalidate(ctx, userID)
			Expect(err).NotTo(HaveOccurred())
			Expect(challenge.CodeHash).To(Equal("$argon2id$code"))

			_, err = otps.GetAndInvalidate(ctx, userID)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("replaces a pending challenge on re-issue", func() {
			expires := time.Now().Add(10 * time.Minute).UTC()
			Expect(otps.Put(ctx, userID, &auth.OTPChallenge{CodeHash: "$argon2id$first", ExpiresAt: expires})).To(Succeed())
			Expect(otps.Put(ctx, userID, &auth.OTPChallenge{CodeHash: "$argon2id$second", ExpiresAt: expires})).To(Succeed())

			challenge, err := otps.GetAndInvalidate(ctx, userID)
			Expect(err).NotTo(HaveOccurred())
			Expect(challenge.CodeHash).To(Equal("$argon2id$second"))
		})

		It("lets exactly one of several concurrent consumers win", func() {
			expires := time.Now().Add(10 * time.Minute).UTC()
			Expect(otps.Put(ctx, userID, &auth.OTPChallenge{CodeHash: "$argon2id$race", ExpiresAt: expires})).To(Succeed())

			const attempts = 8
			var wg sync.WaitGroup
			wins := make(chan struct{}, attempts)
			for range attempts {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					if _, err := otps.GetAndInvalidate(ctx, userID); err == nil {
						wins <- struct{}{}
					}
				}()
			}
			wg.Wait()
			close(wins)
			Expect(wins).To(HaveLen(1))
		})
	})

	Describe("Credential lifecycle", func() {
		It("runs signup through password reset end to end", func() {
			codec, err := auth.NewTokenCodec(
				auth.TokenConfig{Secret: []byte("integration-session-secret"), Algorithm: "HS256", TTL: time.Hour},
				auth.TokenConfig{Secret: []byte("integration-reset-secret"), Algorithm: "HS256", TTL: 15 * time.Minute},
			)
			Expect(err).NotTo(HaveOccurred())

			generator, err := auth.NewOTPGenerator(auth.DefaultOTPDigits)
			Expect(err).NotTo(HaveOccurred())

			sender := &recordingSender{}
			svc, err := auth.NewService(users, otps, auth.NewArgon2idHasher(), codec, generator, sender, auth.ServiceOptions{})
			Expect(err).NotTo(HaveOccurred())

			session, err := svc.Signup(ctx, "lifecycle@example.com", "first-password")
			Expect(err).NotTo(HaveOccurred())

			user, err := svc.AuthenticateRequest(ctx, session)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email).To(Equal("lifecycle@example.com"))
			Expect(user.PasswordHash).To(BeEmpty())

			Expect(svc.ForgotPassword(ctx, "lifecycle@example.com")).To(Succeed())
			Expect(sender.last()).To(HaveLen(auth.DefaultOTPDigits))

			resetToken, err := svc.VerifyOTP(ctx, "lifecycle@example.com", sender.last())
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.ResetPassword(ctx, resetToken, "second-password")).To(Succeed())

			_, err = svc.Login(ctx, "lifecycle@example.com", "first-password")
			Expect(err).To(MatchError(auth.ErrInvalidCredentials))

			_, err = svc.Login(ctx, "lifecycle@example.com", "second-password")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
