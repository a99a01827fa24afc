// Package app bootstraps the VibgyorChat client and exposes its command-line
// surface.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/config"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/logging"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/realtime"
)

// Run bootstraps the client application and executes the requested command.
func Run(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	clientID := uuid.NewString()
	ctx = logging.WithLogger(ctx, logger.With("client_id", clientID))
	ctx = logging.WithClientID(ctx, clientID)

	client := NewClient(ctx, cfg)
	defer client.Close()

	root := newRootCommand(client)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newRootCommand(client *Client) *cobra.Command {
	root := &cobra.Command{
		Use:           "vibgyorchat",
		Short:         "VibgyorChat terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newLoginCommand(client),
		newAdminLoginCommand(client),
		newLogoutCommand(client),
		newWhoamiCommand(client),
		newContactsCommand(client),
		newSearchCommand(client),
		newGroupsCommand(client),
		newChatCommand(client),
		newInviteCommand(client),
	)
	return root
}

func newLoginCommand(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Log in with an emailed one-time code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			email := args[0]

			if err := client.Sessions.SendVerificationCode(ctx, email); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Verification code sent to %s\n", email)

			otp, err := prompt(cmd, "Enter code: ")
			if err != nil {
				return err
			}

			result, err := client.Sessions.VerifyCode(ctx, email, otp)
			if err != nil {
				return err
			}
			if result.RequiresCompletion {
				fmt.Fprintln(cmd.OutOrStdout(), "Logged in; profile completion required.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in.")
			return nil
		},
	}
}

func newAdminLoginCommand(client *Client) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "admin-login <email>",
		Short: "Log in through the admin bypass endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Sessions.AdminBypassLogin(cmd.Context(), args[0], username, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Admin bypass login succeeded.")
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "admin-user", "", "admin username")
	cmd.Flags().StringVar(&password, "admin-pass", "", "admin password")
	_ = cmd.MarkFlagRequired("admin-user")
	_ = cmd.MarkFlagRequired("admin-pass")
	return cmd
}

func newLogoutCommand(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client.Sessions.Logout(cmd.Context())
			client.Contacts.ClearCache()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCommand(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !client.Sessions.IsAuthenticated() {
				return errors.New("not logged in")
			}
			me, err := client.Contacts.Me(cmd.Context(), false)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) <%s>\n", me.Name, me.Username, me.Email)
			return nil
		},
	}
}

func newContactsCommand(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "List contacts with relationship flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := client.Contacts.Contacts(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range list {
				var flags []string
				if c.Muted {
					flags = append(flags, "muted")
				}
				if c.Pinned {
					flags = append(flags, "pinned")
				}
				if c.Favorited {
					flags = append(flags, "favorited")
				}
				if c.Archived {
					flags = append(flags, "archived")
				}
				if c.Blocked {
					flags = append(flags, "blocked")
				}
				suffix := ""
				if len(flags) > 0 {
					suffix = " [" + strings.Join(flags, ",") + "]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>%s\n", c.Name, c.Email, suffix)
			}
			return nil
		},
	}
}

func newSearchCommand(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the user directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := client.Contacts.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) <%s>\n", u.Name, u.Username, u.Email)
			}
			return nil
		},
	}
}

func newGroupsCommand(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List group conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			groups, err := client.Conversations.Groups(cmd.Context())
			if err != nil {
				return err
			}
			flags, err := client.Conversations.GroupFlags(cmd.Context())
			if err != nil {
				return err
			}
			for _, g := range groups {
				state := flags[g.ID]
				marker := ""
				if state.Pinned {
					marker = " *"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%d members)%s\n", g.ID, g.Name, len(g.Participants), marker)
			}
			return nil
		},
	}
}

func newChatCommand(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Open a conversation and send messages interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conversationID := args[0]
			ctx = logging.WithConversationID(ctx, conversationID)
			logging.FromContext(ctx).Info("opening conversation",
				"conversation_id", logging.ConversationIDFromContext(ctx))

			me, err := client.Contacts.Me(ctx, false)
			if err != nil {
				return err
			}

			if err := client.Supervisor.Connect(ctx); err != nil {
				return err
			}
			defer client.Supervisor.Disconnect()

			if err := client.Supervisor.JoinConversation(conversationID); err != nil {
				return err
			}

			page, err := client.Cache.LoadPage(ctx, conversationID, "")
			if err != nil {
				return err
			}
			for _, msg := range page.Messages {
				printMessage(cmd, msg.Sender, msg.CreatedAt, msg.Content, msg.Deleted)
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			lines := make(chan string)
			go func() {
				defer close(lines)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					line = strings.TrimSpace(line)
					if line == "" {
						continue
					}
					if line == "/quit" {
						return nil
					}
					client.Cache.SendOptimistic(models.Message{
						ConversationID: conversationID,
						Sender:         me.Email,
						Type:           models.MessageTypeText,
						Content:        line,
					})
					if err := client.Supervisor.SendText(conversationID, line, ""); err != nil {
						if errors.Is(err, realtime.ErrNotConnected) {
							fmt.Fprintln(cmd.ErrOrStderr(), "not connected; message queued locally only")
							continue
						}
						return err
					}
				}
			}
		},
	}
}

func newInviteCommand(client *Client) *cobra.Command {
	invite := &cobra.Command{
		Use:   "invite",
		Short: "Manage group invite links",
	}

	var days int
	create := &cobra.Command{
		Use:   "create <group-id>",
		Short: "Create an invite link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := client.Invites.Create(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/invite/%s\n", client.Config.FrontendURL, link.Token)
			return nil
		},
	}
	create.Flags().IntVar(&days, "days", 7, "days until the link expires")

	list := &cobra.Command{
		Use:   "list <group-id>",
		Short: "List active invite links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			links, err := client.Invites.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, link := range links {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  expires %s\n", link.Token, link.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke an invite link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.Invites.Revoke(cmd.Context(), args[0])
		},
	}

	validate := &cobra.Command{
		Use:   "validate <token>",
		Short: "Check whether an invite link is still usable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := client.Invites.Validate(cmd.Context(), args[0])
			if result.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "valid; joins group %s until %s\n",
					result.Record.GroupID, result.Record.ExpiresAt.Format(time.RFC3339))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "not valid: %s\n", result.Reason)
			return nil
		},
	}

	join := &cobra.Command{
		Use:   "join <token>",
		Short: "Join the group behind a valid invite link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := client.Invites.Validate(cmd.Context(), args[0])
			if !result.Valid {
				return fmt.Errorf("invite is not valid: %s", result.Reason)
			}
			if err := client.Conversations.JoinGroup(cmd.Context(), result.Record.GroupID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Joined group %s\n", result.Record.GroupID)
			return nil
		},
	}

	invite.AddCommand(create, list, revoke, validate, join)
	return invite
}

func prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), label)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func printMessage(cmd *cobra.Command, sender string, at time.Time, content string, deleted bool) {
	if deleted {
		content = "(deleted)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", at.Local().Format("15:04"), sender, content)
}
