package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/adamscao/shotserver/internal/config"
	"github.com/adamscao/shotserver/internal/db"
	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/filestore"
	"github.com/adamscao/shotserver/internal/guard"
	"github.com/adamscao/shotserver/internal/logger"
	"github.com/adamscao/shotserver/internal/models"
	"github.com/adamscao/shotserver/internal/policy"
	"github.com/adamscao/shotserver/internal/service"
)

const passwordEnv = "SHOTSERVER_ADMIN_PASSWORD"

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
	log        zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "Screenshot server administration tool",
	Long:          "Administrative tool for bootstrapping administrators and inspecting users and audit logs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	Long: "Create an administrator account. The password is read from a terminal prompt, " +
		"or from " + passwordEnv + " when stdin is not a terminal.",
	RunE: createAdmin,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  listUsers,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries, newest first",
	RunE:  listAudit,
}

var (
	username     string
	email        string
	generateTOTP bool
	force        bool

	auditUserID int64
	auditAction string
	auditLimit  int
)

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/shotserver/config.yaml", "Config file path")

	// User create-admin flags
	userCreateAdminCmd.Flags().StringVarP(&username, "username", "u", "", "Username (required)")
	userCreateAdminCmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	userCreateAdminCmd.Flags().BoolVar(&generateTOTP, "generate-totp", false, "Require a TOTP code at login and print the secret")
	userCreateAdminCmd.Flags().BoolVar(&force, "force", false, "Create even if an active administrator exists")
	_ = userCreateAdminCmd.MarkFlagRequired("username")

	// Audit list flags
	auditListCmd.Flags().Int64Var(&auditUserID, "user-id", 0, "Only entries for this user")
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "Only entries with this action (e.g. LOGIN_FAILED)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", repository.DefaultAuditLimit, "Maximum number of entries")

	// Add commands
	userCmd.AddCommand(userCreateAdminCmd)
	userCmd.AddCommand(userListCmd)
	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initDB() error {
	// Load configuration
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: "text",
		Writer: os.Stderr,
	})

	// Connect to database
	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.RunMigrations(database); err != nil {
		database.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func createAdmin(cmd *cobra.Command, args []string) error {
	password, err := readPassword()
	if err != nil {
		return err
	}

	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	files, err := filestore.NewOS(cfg.Storage.DataDir, filestore.Options{MaxUploadSize: cfg.Storage.MaxUploadSize})
	if err != nil {
		return fmt.Errorf("failed to open upload directory: %w", err)
	}

	userRepo := repository.NewUserRepository(database.DB)
	auditor := service.NewAuditor(repository.NewAuditRepository(database.DB), log)
	accounts := service.NewAccounts(
		userRepo,
		repository.NewRegistrationRepository(database.DB),
		files,
		guard.NewLockoutGuard(),
		policy.NewValidator(),
		auditor,
		cfg.Security.BcryptCost,
		log,
	)

	user, key, err := accounts.BootstrapAdmin(cmd.Context(), service.BootstrapInput{
		Username:     username,
		Password:     password,
		Email:        email,
		GenerateTOTP: generateTOTP,
		Force:        force,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nAdministrator created successfully!\n")
	fmt.Printf("User ID: %d\n", user.ID)
	fmt.Printf("Username: %s\n", user.Username)
	if key != nil {
		fmt.Printf("\nTOTP Secret: %s\n", key.Secret)
		fmt.Printf("TOTP URL: %s\n", key.URL)
		fmt.Printf("\nAdd the URL to a TOTP app (Google Authenticator, Authy, etc.); logins need the current code\n")
	}

	return nil
}

// readPassword prompts twice on a terminal, otherwise reads passwordEnv
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		pw := os.Getenv(passwordEnv)
		if pw == "" {
			return "", fmt.Errorf("stdin is not a terminal and %s is not set", passwordEnv)
		}
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

func listUsers(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	userRepo := repository.NewUserRepository(database.DB)
	users, err := userRepo.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users found")
		return nil
	}

	fmt.Printf("\nTotal users: %d\n\n", len(users))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUsername\tStatus\tAdmin\tLast Login\tCreated")
	for _, user := range users {
		lastLogin := "never"
		if user.LastLogin != nil {
			lastLogin = user.LastLogin.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			user.ID,
			user.Username,
			user.Status,
			yesNo(user.IsAdmin),
			lastLogin,
			user.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}

	return w.Flush()
}

func listAudit(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	filter := models.AuditFilter{
		Action: strings.ToUpper(auditAction),
		Limit:  auditLimit,
	}
	if auditUserID != 0 {
		filter.UserID = &auditUserID
	}

	entries, err := repository.NewAuditRepository(database.DB).List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list audit log: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Time\tUser\tAction\tIP\tDetails")
	for _, e := range entries {
		user := "-"
		if e.UserID != nil {
			user = fmt.Sprintf("%d", *e.UserID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			user,
			e.Action,
			e.IPAddress,
			e.Details,
		)
	}

	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
