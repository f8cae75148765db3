package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"expedientes/internal/app"
	"expedientes/internal/config"
	"expedientes/internal/domain"
	"expedientes/internal/engine"
	"expedientes/internal/logger"
	"expedientes/internal/metrics"
	"expedientes/internal/repo"
	"expedientes/internal/server"
	"expedientes/internal/telemetry"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "expd",
	Short: "Expedientes CLI",
	Long: `Expedientes tracks custody of consumer-protection case files.
Core concepts:
- Workspace: the directory holding .expedientes/expedientes.db and an optional expedientes.yml.
- User: an identity with a fixed area and a role (user or admin). CLI commands act as --actor.
- Case file (expediente): numbered record owned by exactly one user and located in that user's area.
- Transfer request: the owner asks another user to take custody; the addressee accepts or rejects it.
- History: one record per accepted transfer, newest first.
- Event log: audit trail of every change, view with 'expd log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Initialize(viper.GetString("log-level"), logger.Format(viper.GetString("log-format")))
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("EXPEDIENTES")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor", "", "username the command acts as")
	flags.String("config", "", "config file (default <workspace>/expedientes.yml)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", string(logger.FormatConsole), "log format (console or json)")
	for _, name := range []string{"workspace", "json", "actor", "config", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(transferCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the API under --base-path, Prometheus metrics at /metrics and Swagger UI at /docs. Configured webhooks are delivered while the server runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := jwtSecret(cmd)
			if secret == "" {
				return fmt.Errorf("EXPEDIENTES_JWT_SECRET (or --jwt-secret) is required for bearer auth")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := telemetry.Init(ctx, "expedientes", version); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				telemetry.Shutdown(shutdownCtx)
			}()

			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			rec := metrics.NewRecorder(nil)
			ws.Engine.Metrics = rec
			allowDevLogin := ws.Config.Auth.AllowDevLogin
			if cmd.Flags().Changed("allow-dev-login") {
				allowDevLogin, _ = cmd.Flags().GetBool("allow-dev-login")
			}
			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:     secret,
					TokenTTL:      ws.Config.Auth.TokenTTL,
					AllowDevLogin: allowDevLogin,
				},
				Metrics: rec,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			log := logger.For(logger.ComponentServer)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Infow("listening", "addr", addr, "base_path", basePath, "dev_login", allowDevLogin)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				return server.NewWebhookDispatcher(ws.Engine, rec).Run(gctx)
			})
			fmt.Printf("Serving Expedientes API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	cmd.Flags().Bool("allow-dev-login", false, "enable POST /auth/dev/login (overrides config)")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}
	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userListCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		Long:  "Registers a user. The area is fixed for the life of the user. Local operators may create users without --actor; when --actor is set it must be an admin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if name := viper.GetString("actor"); name != "" {
					actor, err := ws.Actor(ctx, name)
					if err != nil {
						return err
					}
					if actor.Role != domain.RoleAdmin {
						return fmt.Errorf("%s is not an admin", actor.Username)
					}
					opts.ActorID = actor.ID
				}
				u, err := ws.Engine.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Username, "username", "", "login name")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name (defaults to username)")
	cmd.Flags().StringVar(&opts.Area, "area", "", "area: "+areaList())
	cmd.Flags().StringVar(&opts.Role, "role", string(domain.RoleUser), "role: user or admin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("area")
	return cmd
}

func userListCmd() *cobra.Command {
	var area string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users, optionally of one area",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				var (
					users []domain.User
					err   error
				)
				if area != "" {
					users, err = ws.Engine.ListUsersByArea(ctx, area)
				} else {
					users, err = ws.Engine.ListUsers(ctx)
				}
				if err != nil {
					return err
				}
				return printUsers(users)
			})
		},
	}
	cmd.Flags().StringVar(&area, "area", "", "area filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd(), apikeyListCmd())
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys (hashes only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				userID := ""
				if username != "" {
					u, err := ws.Actor(ctx, username)
					if err != nil {
						return err
					}
					userID = u.ID
				}
				keys, err := ws.Engine.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "User", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.UserID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "only keys of this username")
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var username, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for a user",
		Long:  "Issues an API key for X-Api-Key authentication. The key is shown once; only its hash is stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				u, err := ws.Actor(ctx, username)
				if err != nil {
					return err
				}
				key, plain, err := ws.Engine.CreateAPIKey(ctx, u.ID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "user_id": key.UserID, "name": key.Name, "key": plain})
				}
				fmt.Printf("API key for %s (store it now, it is not shown again):\n%s\n", u.Username, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func tokenCmd() *cobra.Command {
	var username string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := jwtSecret(cmd)
			if secret == "" {
				return fmt.Errorf("EXPEDIENTES_JWT_SECRET (or --jwt-secret) is required")
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				u, err := ws.Actor(ctx, username)
				if err != nil {
					return err
				}
				if ttl <= 0 {
					ttl = ws.Config.Auth.TokenTTL
				}
				token, exp, err := server.SignToken(secret, u, ttl)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"token": token, "expires_at": domain.Timestamp(exp), "user": u})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username the token identifies")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func caseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "case",
		Aliases: []string{"expediente"},
		Short:   "Manage case files",
		Long:    "Case files belong to one user and sit in that user's area. Listing is scoped to the caller's area unless the config grants wider visibility.",
	}
	cmd.AddCommand(caseCreateCmd())
	cmd.AddCommand(caseListCmd())
	cmd.AddCommand(caseShowCmd())
	cmd.AddCommand(caseHistoryCmd())
	return cmd
}

func caseCreateCmd() *cobra.Command {
	var opts engine.CaseFileCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a case file owned by the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				c, err := ws.Engine.CreateCaseFile(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printCaseFiles([]domain.CaseFile{c}, "")
			})
		},
	}
	cmd.Flags().StringVar(&opts.Number, "numero", "", "case number (unique)")
	cmd.Flags().StringVar(&opts.Title, "titulo", "", "title")
	cmd.Flags().StringVar(&opts.Description, "descripcion", "", "description")
	cmd.Flags().StringVar(&opts.Status, "estado", "", "pendiente, en_proceso or resuelto")
	cmd.Flags().StringVar(&opts.Priority, "prioridad", "", "baja, media or alta")
	cmd.Flags().StringVar(&opts.Article, "articulo", "", "article 1 to 6")
	_ = cmd.MarkFlagRequired("numero")
	_ = cmd.MarkFlagRequired("titulo")
	_ = cmd.MarkFlagRequired("articulo")
	return cmd
}

func caseListCmd() *cobra.Command {
	var opts engine.CaseFileListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible case files, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				page, err := ws.Engine.ListCaseFiles(ctx, actor, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				return printCaseFiles(page.Items, page.NextCursor)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Search, "search", "", "match number, title or description")
	cmd.Flags().StringVar(&opts.Status, "estado", "", "status filter (or all)")
	cmd.Flags().StringVar(&opts.Area, "area", "", "area filter (unrestricted callers only)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "page size")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "next_cursor from a previous page")
	return cmd
}

func caseShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a case file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				c, err := ws.Engine.GetCaseFile(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func caseHistoryCmd() *cobra.Command {
	var limit int
	var cursor string
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "List accepted transfers of a case file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				page, err := ws.Engine.ListHistory(ctx, args[0], limit, cursor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"When", "From", "To", "From Area", "To Area", "Observaciones"})
				for _, h := range page.Items {
					tw.AppendRow(table.Row{h.CreatedAt, refName(h.FromUser, h.FromUserID), refName(h.ToUser, h.ToUserID), h.FromArea.Label(), h.ToArea.Label(), h.Observations})
				}
				tw.Render()
				printNextCursor(page.NextCursor)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "next_cursor from a previous page")
	return cmd
}

func transferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Request and resolve custody transfers",
		Long:  "The owner of a case file requests a transfer to another user. Only the addressee can accept or reject it, and only while it is pending. Accepting moves the case file into the addressee's custody and area.",
	}
	cmd.AddCommand(transferRequestCmd())
	cmd.AddCommand(transferInboxCmd())
	cmd.AddCommand(transferResolveCmd("accept"))
	cmd.AddCommand(transferResolveCmd("reject"))
	return cmd
}

func transferRequestCmd() *cobra.Command {
	var caseID, to, message string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Ask another user to take custody of a case file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				target, err := ws.Engine.UserByUsername(ctx, to)
				if err != nil {
					return err
				}
				t, err := ws.Engine.RequestTransfer(ctx, actor, caseID, target.ID, message)
				if err != nil {
					return err
				}
				return printTransfers([]domain.TransferRequest{t}, "")
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "case file id")
	cmd.Flags().StringVar(&to, "to", "", "username of the recipient")
	cmd.Flags().StringVar(&message, "message", "", "note for the recipient")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func transferInboxCmd() *cobra.Command {
	var limit int
	var cursor string
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Pending requests addressed to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				page, err := ws.Engine.ListPendingNotifications(ctx, actor, limit, cursor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				return printTransfers(page.Items, page.NextCursor)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "next_cursor from a previous page")
	return cmd
}

func transferResolveCmd(op string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   op + " <request-id>",
		Short: strings.ToUpper(op[:1]) + op[1:] + " a pending transfer request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				resolve := ws.Engine.AcceptTransfer
				if op == "reject" {
					resolve = ws.Engine.RejectTransfer
				}
				t, err := resolve(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printTransfers([]domain.TransferRequest{t}, "")
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Audit trail of user, API key, case file and transfer changes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				events, err := ws.Engine.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long:  "expedientes.yml sets case-file visibility, token lifetime, dev login and webhooks. Without a file the defaults apply.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default expedientes.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(workspaceOptions())
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.LoadConfig(workspaceOptions())
			if viper.GetBool("json") {
				msg := ""
				if err != nil {
					msg = err.Error()
				}
				return printJSON(map[string]any{"ok": err == nil, "error": msg})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

// --- helpers ---

// jwtSecret prefers the command's --jwt-secret flag over EXPEDIENTES_JWT_SECRET.
func jwtSecret(cmd *cobra.Command) string {
	if s, _ := cmd.Flags().GetString("jwt-secret"); s != "" {
		return s
	}
	return viper.GetString("jwt-secret")
}

func workspaceOptions() app.Options {
	return app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
	}
}

func openWorkspace(ctx context.Context) (*app.Workspace, error) {
	return app.Open(ctx, workspaceOptions())
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withActor(ctx context.Context, fn func(context.Context, *app.Workspace, domain.User) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		actor, err := ws.Actor(ctx, viper.GetString("actor"))
		if err != nil {
			return err
		}
		return fn(ctx, ws, actor)
	})
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printUsers(users []domain.User) error {
	if viper.GetBool("json") {
		return printJSON(users)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Username", "Name", "Area", "Role"})
	for _, u := range users {
		tw.AppendRow(table.Row{u.ID, u.Username, u.Name, u.Area.Label(), u.Role})
	}
	tw.Render()
	return nil
}

func printCaseFiles(items []domain.CaseFile, next string) error {
	if viper.GetBool("json") {
		if len(items) == 1 && next == "" {
			return printJSON(items[0])
		}
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Numero", "Titulo", "Area", "Estado", "Prioridad", "Art.", "Owner"})
	for _, c := range items {
		tw.AppendRow(table.Row{c.ID, c.Number, c.Title, c.Area.Label(), c.Status, c.Priority, c.Article, refName(c.Owner, c.OwnerID)})
	}
	tw.Render()
	printNextCursor(next)
	return nil
}

func printTransfers(items []domain.TransferRequest, next string) error {
	if viper.GetBool("json") {
		if len(items) == 1 && next == "" {
			return printJSON(items[0])
		}
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Expediente", "From", "To", "Status", "Message", "Created"})
	for _, t := range items {
		number := t.CaseFileID
		if t.CaseFile != nil {
			number = t.CaseFile.Number
		}
		tw.AppendRow(table.Row{t.ID, number, refName(t.FromUser, t.FromUserID), refName(t.ToUser, t.ToUserID), t.Status, t.Message, t.CreatedAt})
	}
	tw.Render()
	printNextCursor(next)
	return nil
}

func printNextCursor(next string) {
	if next != "" {
		fmt.Printf("more results: --cursor %q\n", next)
	}
}

func refName(ref *domain.UserRef, fallback string) string {
	if ref == nil {
		return fallback
	}
	if ref.Name != "" {
		return ref.Name
	}
	return ref.Username
}

func areaList() string {
	names := make([]string, 0, len(domain.Areas))
	for _, a := range domain.Areas {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
