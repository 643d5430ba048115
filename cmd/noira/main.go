// Package main is the noira command-line client for Audiobookshelf.
// It manages a login session, browses the configured library, and
// extracts color palettes from cover art.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/shakogegia/noira/internal/api/audiobookshelf"
	"github.com/shakogegia/noira/internal/config"
	"github.com/shakogegia/noira/internal/credentials"
	"github.com/shakogegia/noira/internal/crypto"
	"github.com/shakogegia/noira/internal/database"
	"github.com/shakogegia/noira/internal/library"
	"github.com/shakogegia/noira/internal/logger"
	"github.com/shakogegia/noira/internal/palette"
	"github.com/shakogegia/noira/internal/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "noira",
		Usage:   "Audiobookshelf client: sessions, library browsing, cover palettes",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "config.yaml",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authenticate against an Audiobookshelf server and store credentials",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "server",
						Aliases: []string{"s"},
						Usage:   "Audiobookshelf server URL",
					},
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Account username",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password (prompted when omitted)",
					},
				},
				Action: loginAction,
			},
			{
				Name:   "logout",
				Usage:  "Clear the stored session",
				Action: logoutAction,
			},
			{
				Name:   "status",
				Usage:  "Show the current session state",
				Action: statusAction,
			},
			{
				Name:  "libraries",
				Usage: "List libraries on the server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "use",
						Usage: "Store the given library `ID` as the active library",
					},
				},
				Action: librariesAction,
			},
			{
				Name:   "books",
				Usage:  "Fetch and list the books of the active library",
				Action: booksAction,
			},
			{
				Name:      "search",
				Usage:     "Search fetched books by title, author, or narrator",
				ArgsUsage: "TERM",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "suggest",
						Usage: "Print title suggestions instead of full results",
					},
				},
				Action: searchAction,
			},
			{
				Name:      "palette",
				Usage:     "Extract a color palette from a cover image",
				ArgsUsage: "ITEM_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Read the image from `FILE` instead of the server",
					},
				},
				Action: paletteAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Get().Error().Err(err).Msg("Error running application")
		os.Exit(1)
	}
}

// env bundles the services every command needs.
type env struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.Database
	store *credentials.Store
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Setup(logger.Config{
		Level:  cfg.Logging.Level,
		Format: logger.ParseLogFormat(cfg.Logging.Format),
	})
	log := logger.Get()

	db, err := database.New(cfg.Paths.DatabaseFile, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Paths.DataDir, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	store, err := credentials.NewStore(db, encryptor, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	return &env{cfg: cfg, log: log, db: db, store: store}, nil
}

func (e *env) close() {
	if err := e.db.Close(); err != nil {
		e.log.Warn().Err(err).Msg("Failed to close database")
	}
}

func loginAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	serverURL := c.String("server")
	if serverURL == "" {
		serverURL = e.cfg.Server.URL
	}
	if serverURL == "" {
		return fmt.Errorf("no server URL given; pass --server or set server.url in the config")
	}

	password := c.String("password")
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	}

	mgr := session.NewManager(e.store, e.cfg.HTTP.Timeout, e.log)
	if err := mgr.Login(c.Context, serverURL, c.String("username"), password); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s\n", mgr.CurrentUser())
	return nil
}

func logoutAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	mgr := session.NewManager(e.store, e.cfg.HTTP.Timeout, e.log)
	mgr.Logout()
	fmt.Println("Logged out")
	return nil
}

func statusAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	mgr := session.NewManager(e.store, e.cfg.HTTP.Timeout, e.log)
	if !mgr.CheckAuthentication(c.Context) {
		fmt.Println("Not logged in")
		return nil
	}

	creds, err := e.store.Snapshot()
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s at %s\n", creds.Username, creds.ServerURL)
	if creds.LibraryID != "" {
		fmt.Printf("Active library: %s\n", creds.LibraryID)
	}

	if mgr.ValidateToken(c.Context) {
		fmt.Println("Token: valid")
	} else {
		fmt.Println("Token: rejected by server")
	}
	return nil
}

func librariesAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	creds, err := e.store.Snapshot()
	if err != nil {
		return err
	}
	if creds.ServerURL == "" {
		return library.ErrNoServerURL
	}
	if creds.AuthToken == "" {
		return library.ErrNoAuthToken
	}

	client := audiobookshelf.NewClient(creds.ServerURL, creds.AuthToken, e.cfg.HTTP.Timeout)
	libs, err := client.GetLibraries(c.Context)
	if err != nil {
		return err
	}

	for _, lib := range libs {
		marker := " "
		if lib.ID == creds.LibraryID {
			marker = "*"
		}
		fmt.Printf("%s %s  %s (%s)\n", marker, lib.ID, lib.Name, lib.MediaType)
	}

	if id := c.String("use"); id != "" {
		if err := e.store.Set(credentials.FieldLibraryID, id); err != nil {
			return fmt.Errorf("failed to store library ID: %w", err)
		}
		fmt.Printf("Active library set to %s\n", id)
	}
	return nil
}

func booksAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	svc := library.NewService(e.store, e.cfg.HTTP.Timeout, e.log)
	if err := svc.Fetch(c.Context); err != nil {
		return err
	}

	for _, book := range svc.Books() {
		fmt.Printf("%s  %s — %s (%s)\n", book.ID, book.Title, book.AuthorNames(), book.FormattedDuration())
	}
	return nil
}

func searchAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	term := c.Args().First()

	svc := library.NewService(e.store, e.cfg.HTTP.Timeout, e.log)
	if err := svc.Fetch(c.Context); err != nil {
		return err
	}

	if c.Bool("suggest") {
		for _, title := range svc.Suggestions(term) {
			fmt.Println(title)
		}
		return nil
	}

	for _, book := range svc.Search(term) {
		fmt.Printf("%s  %s — %s\n", book.ID, book.Title, book.AuthorNames())
	}
	return nil
}

func paletteAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	ext := palette.NewExtractor(e.cfg.Palette.Colors, e.log)

	var p palette.Palette
	if file := c.String("file"); file != "" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open image: %w", err)
		}
		defer f.Close()
		p, err = ext.Extract(f)
		if err != nil {
			return err
		}
	} else {
		itemID := c.Args().First()
		if itemID == "" {
			return fmt.Errorf("pass an item ID or --file")
		}
		p, err = coverPalette(c.Context, e, ext, itemID)
		if err != nil {
			return err
		}
	}

	for _, s := range p.Colors() {
		fmt.Printf("%s  %.1f%%\n", s.Hex(), s.Population*100)
	}
	fmt.Printf("average: %s\n", palette.Swatch{Color: p.Average()}.Hex())
	return nil
}

// coverPalette downloads a cover from the server and extracts its palette.
func coverPalette(ctx context.Context, e *env, ext *palette.Extractor, itemID string) (palette.Palette, error) {
	creds, err := e.store.Snapshot()
	if err != nil {
		return palette.Palette{}, err
	}
	if creds.ServerURL == "" {
		return palette.Palette{}, library.ErrNoServerURL
	}
	if creds.AuthToken == "" {
		return palette.Palette{}, library.ErrNoAuthToken
	}

	url := fmt.Sprintf("%s/audiobookshelf/api/items/%s/cover", creds.ServerURL, itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return palette.Palette{}, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AuthToken)

	client := &http.Client{Timeout: e.cfg.HTTP.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return palette.Palette{}, &audiobookshelf.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return palette.Palette{}, &audiobookshelf.ServerError{Status: resp.StatusCode}
	}
	return ext.Extract(resp.Body)
}
