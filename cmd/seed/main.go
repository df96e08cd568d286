package main

import (
	"context"
	"fmt"
	"time"

	"github.com/studycircle/studycircle-backend/internal/config"
	"github.com/studycircle/studycircle-backend/internal/database"
	"github.com/studycircle/studycircle-backend/internal/logger"
	"github.com/studycircle/studycircle-backend/internal/model"
	"github.com/studycircle/studycircle-backend/internal/repository"
)

// Seeds a handful of users and one demo group so a fresh instance has
// something to poke at. Meant for development databases only.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)

	fmt.Println("=== Seeding demo users ===")

	names := []string{"Aarav Sharma", "Diya Patel", "Rohan Gupta", "Ananya Iyer", "Kabir Mehta"}
	users := make([]*model.User, 0, len(names))
	for _, name := range names {
		u := &model.User{DisplayName: name, IsActive: true}
		if err := userRepo.Create(ctx, u); err != nil {
			log.Fatal().Err(err).Str("name", name).Msg("Failed to create user")
		}
		fmt.Printf("  user %s  %s\n", u.ID, u.DisplayName)
		users = append(users, u)
	}

	fmt.Println("=== Seeding demo group ===")

	group := &model.Group{
		Name:      "Calculus Crunch Week",
		Subject:   model.SubjectMathematics,
		Chapter:   "Integration Techniques",
		CreatorID: users[0].ID,
		Challenge: model.Challenge{DurationDays: 3},
		Settings:  model.GroupSettings{MaxMembers: 10},
	}
	if err := groupRepo.Create(ctx, group); err != nil {
		log.Fatal().Err(err).Msg("Failed to create group")
	}
	fmt.Printf("  group %s  %q (creator %s)\n", group.ID, group.Name, users[0].DisplayName)

	for _, u := range users[1:] {
		inv := &model.Invitation{
			GroupID:   group.ID,
			InviteeID: u.ID,
			InviterID: users[0].ID,
			ExpiresAt: time.Now().Add(cfg.InviteTTL),
		}
		if err := groupRepo.InsertInvitation(ctx, inv); err != nil {
			log.Fatal().Err(err).Str("invitee", u.DisplayName).Msg("Failed to invite")
		}
		fmt.Printf("  invited %s (expires %s)\n", u.DisplayName, inv.ExpiresAt.Format(time.RFC3339))
	}

	fmt.Println("Done.")
}
