package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/lifecycle"
	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	"go.uber.org/zap"
)

const usage = `Usage: admin <command> [args]

Commands:
  create-user <phone> <role> [name]   register an account
  set-role <user_id> <role>           change an account's role
  deactivate <user_id>                block an account from signing in
  delete-complaint <complaint_id>     remove a complaint and its history`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	if err := config.LoadDotEnv(); err != nil {
		log.Printf("warning: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	db, err := storage.Open(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	store := storage.NewStorageService(db, zap.NewNop())
	ctx := context.Background()

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "create-user":
		if len(args) < 2 {
			fmt.Println("Usage: admin create-user <phone> <role> [name]")
			os.Exit(1)
		}
		role := mustRole(args[1])
		user := &models.User{PhoneNumber: args[0], Role: role, IsActive: true}
		if len(args) > 2 {
			user.Name = strings.Join(args[2:], " ")
		}
		if err := store.CreateUser(ctx, user); err != nil {
			log.Fatalf("Error creating user: %v", err)
		}
		fmt.Printf("User %s created with role %s.\n", user.ID, user.Role)
	case "set-role":
		if len(args) != 2 {
			fmt.Println("Usage: admin set-role <user_id> <role>")
			os.Exit(1)
		}
		role := mustRole(args[1])
		if err := updateUser(ctx, store, args[0], func(u *models.User) { u.Role = role }); err != nil {
			log.Fatalf("Error changing role: %v", err)
		}
		fmt.Printf("User %s is now %s.\n", args[0], role)
	case "deactivate":
		if len(args) != 1 {
			fmt.Println("Usage: admin deactivate <user_id>")
			os.Exit(1)
		}
		if err := updateUser(ctx, store, args[0], func(u *models.User) { u.IsActive = false }); err != nil {
			log.Fatalf("Error deactivating user: %v", err)
		}
		fmt.Printf("User %s has been deactivated.\n", args[0])
	case "delete-complaint":
		if len(args) != 1 {
			fmt.Println("Usage: admin delete-complaint <complaint_id>")
			os.Exit(1)
		}
		// Runs as a system admin so the usual lifecycle checks and audit apply.
		manager := lifecycle.NewManager(store, nil)
		actx := lifecycle.WithActor(ctx, models.Actor{UserID: "admin-cli", Role: models.RoleAdmin})
		if err := manager.DeleteComplaint(actx, args[0]); err != nil {
			log.Fatalf("Error deleting complaint: %v", err)
		}
		fmt.Printf("Complaint %s has been deleted.\n", args[0])
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func mustRole(raw string) models.Role {
	role, ok := models.ParseRole(raw)
	if !ok {
		fmt.Printf("Unknown role %q. Use one of CITIZEN, WORKER, OFFICER, ADMIN.\n", raw)
		os.Exit(1)
	}
	return role
}

func updateUser(ctx context.Context, s storage.Storage, id string, change func(*models.User)) error {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	change(user)
	return s.UpdateUser(ctx, user)
}
