package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomwire/internal/app"
	"roomwire/internal/config"
	"roomwire/pkg/types"
)

const usage = `usage: roomwire [command] [flags]

commands:
  serve                 run the chat server (default)
  token                 issue a bearer token for a user
  add-user              create a user
  add-room              create a room
  add-member            add a user to a private room
  set-active            enable or disable a user account

Configuration is read from ROOMWIRE_* environment variables and the JSON file
named by ROOMWIRE_CONFIG_FILE (file > env > defaults).
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// run dispatches a subcommand. It is separate from main so it can be tested.
func run(args []string, out io.Writer) error {
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.LoadConfigWithPrecedence(os.Getenv("ROOMWIRE_CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	switch cmd {
	case "serve":
		return serve(cfg)
	case "token":
		return issueToken(cfg, args, out)
	case "add-user":
		return addUser(cfg, args, out)
	case "add-room":
		return addRoom(cfg, args, out)
	case "add-member":
		return addMember(cfg, args, out)
	case "set-active":
		return setActive(cfg, args, out)
	case "help", "-h", "--help":
		_, err := fmt.Fprint(out, usage)
		return err
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func serve(cfg *config.Config) error {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}
	return nil
}

// withApp opens the database for a one-shot operator command.
func withApp(cfg *config.Config, fn func(ctx context.Context, a *app.Application) error) error {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer func() {
		if err := application.Database().Close(); err != nil {
			log.Printf("Database close error: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	defer cancel()
	return fn(ctx, application)
}

func issueToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "user id (required)")
	ttl := fs.Duration("ttl", 0, "token lifetime (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("token: -user is required")
	}

	return withApp(cfg, func(ctx context.Context, a *app.Application) error {
		user, err := a.Database().GetUser(ctx, *userID)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		token, err := a.Tokens().IssueToken(user.ID, user.Role, *ttl)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		_, err = fmt.Fprintln(out, token)
		return err
	})
}

func addUser(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-user", flag.ContinueOnError)
	id := fs.String("id", "", "user id (required)")
	username := fs.String("username", "", "display name (defaults to id)")
	role := fs.String("role", types.RoleUser, "user or admin")
	avatar := fs.String("avatar", "", "avatar URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !types.IsValidUserID(*id) {
		return fmt.Errorf("add-user: %w", types.ErrInvalidUserID)
	}
	if *role != types.RoleUser && *role != types.RoleAdmin {
		return fmt.Errorf("add-user: role must be %s or %s", types.RoleUser, types.RoleAdmin)
	}
	if *username == "" {
		*username = *id
	}

	user := &types.User{ID: *id, Username: *username, Role: *role, IsActive: true, CreatedAt: time.Now().UTC()}
	if *avatar != "" {
		user.AvatarURL = avatar
	}
	return withApp(cfg, func(ctx context.Context, a *app.Application) error {
		if err := a.Database().CreateUser(ctx, user); err != nil {
			return fmt.Errorf("add-user: %w", err)
		}
		_, err := fmt.Fprintf(out, "created user %s (%s)\n", user.ID, user.Role)
		return err
	})
}

func addRoom(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-room", flag.ContinueOnError)
	id := fs.String("id", "", "room id (required)")
	name := fs.String("name", "", "room name (defaults to id)")
	private := fs.Bool("private", false, "members only")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !types.IsValidRoomID(*id) {
		return fmt.Errorf("add-room: %w", types.ErrInvalidRoomID)
	}
	if *name == "" {
		*name = *id
	}

	room := &types.Room{ID: *id, Name: *name, IsPrivate: *private, CreatedAt: time.Now().UTC()}
	return withApp(cfg, func(ctx context.Context, a *app.Application) error {
		if err := a.Database().CreateRoom(ctx, room); err != nil {
			return fmt.Errorf("add-room: %w", err)
		}
		_, err := fmt.Fprintf(out, "created room %s (private=%t)\n", room.ID, room.IsPrivate)
		return err
	})
}

func addMember(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-member", flag.ContinueOnError)
	roomID := fs.String("room", "", "room id (required)")
	userID := fs.String("user", "", "user id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !types.IsValidRoomID(*roomID) || !types.IsValidUserID(*userID) {
		return errors.New("add-member: valid -room and -user are required")
	}

	return withApp(cfg, func(ctx context.Context, a *app.Application) error {
		if err := a.Database().AddRoomMember(ctx, *roomID, *userID); err != nil {
			return fmt.Errorf("add-member: %w", err)
		}
		_, err := fmt.Fprintf(out, "added %s to %s\n", *userID, *roomID)
		return err
	})
}

func setActive(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("set-active", flag.ContinueOnError)
	userID := fs.String("user", "", "user id (required)")
	active := fs.Bool("active", true, "false disables the account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !types.IsValidUserID(*userID) {
		return fmt.Errorf("set-active: %w", types.ErrInvalidUserID)
	}

	return withApp(cfg, func(ctx context.Context, a *app.Application) error {
		if err := a.Database().SetUserActive(ctx, *userID, *active); err != nil {
			return fmt.Errorf("set-active: %w", err)
		}
		_, err := fmt.Fprintf(out, "user %s active=%t\n", *userID, *active)
		return err
	})
}
