package main

import (
	"bookshelf/pkg/client"
	"bookshelf/pkg/entries"
	"bookshelf/pkg/wishlist"
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

func (r *Runner) newClient(cmd *cli.Command) *client.Client {
	return client.New(cmd.String("server"),
		client.WithHTTPClient(r.httpClient),
		client.WithToken(cmd.String("token")),
		client.WithLanguage(cmd.String("lang")),
	)
}

// authedClient returns a client whose token the server has accepted.
func (r *Runner) authedClient(ctx context.Context, cmd *cli.Command) (*client.Client, error) {
	c := r.newClient(cmd)
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if _, err := c.RequireAuth(); err != nil {
		if errors.Is(err, client.ErrLoginRequired) {
			return nil, fmt.Errorf("not logged in: run the login command and set BOOKSHELF_TOKEN")
		}
		return nil, err
	}
	return c, nil
}

func credentialFlags(withName bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "email", Usage: "Account email", Required: true},
		&cli.StringFlag{Name: "password", Usage: "Account password", Required: true, Sources: cli.EnvVars("BOOKSHELF_PASSWORD")},
	}
	if withName {
		flags = append(flags, &cli.StringFlag{Name: "name", Usage: "Display name"})
	}
	return flags
}

func signupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "signup",
		Usage:  "Create an account",
		Flags:  credentialFlags(true),
		Action: r.Signup,
	}
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Sign in and print an access token",
		Flags:  credentialFlags(false),
		Action: r.Login,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Revoke the current access token",
		Action: r.Logout,
	}
}

func (r *Runner) Signup(ctx context.Context, cmd *cli.Command) error {
	c := r.newClient(cmd)
	user, err := c.Signup(ctx, cmd.String("email"), cmd.String("password"), cmd.String("name"))
	if err != nil {
		return err
	}
	if c.Token() == "" {
		return r.writePlainln("account %s created; confirm it before logging in", user.Email)
	}
	return r.writePlainln("export BOOKSHELF_TOKEN=%s", c.Token())
}

func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	c := r.newClient(cmd)
	if _, err := c.Login(ctx, cmd.String("email"), cmd.String("password")); err != nil {
		return err
	}
	return r.writePlainln("export BOOKSHELF_TOKEN=%s", c.Token())
}

func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	c := r.newClient(cmd)
	if err := c.Logout(ctx); err != nil {
		return err
	}
	return r.writePlainln("logged out")
}

func entriesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "entries",
		Usage: "Books you have read",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List your entries",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Only the entry with this id"},
				},
				Action: r.ListEntries,
			},
			{
				Name:  "add",
				Usage: "Record a book",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "Book title", Required: true},
					&cli.StringFlag{Name: "author", Usage: "Book author", Required: true},
					&cli.IntFlag{Name: "rating", Usage: "Overall rating, 0 to 5"},
					&cli.BoolFlag{Name: "recommended", Usage: "Would recommend"},
					&cli.StringFlag{Name: "format", Usage: "digital, physical or both"},
					&cli.IntFlag{Name: "pages", Usage: "Number of pages"},
					&cli.StringFlag{Name: "start", Usage: "Start date, YYYY-MM-DD"},
					&cli.StringFlag{Name: "end", Usage: "End date, YYYY-MM-DD"},
					&cli.StringFlag{Name: "genre", Usage: "Genre"},
					&cli.StringFlag{Name: "fav-character", Usage: "Favourite character"},
					&cli.StringFlag{Name: "hated-character", Usage: "Least favourite character"},
					&cli.StringSliceFlag{Name: "phrase", Usage: "Favourite phrase (repeatable)"},
					&cli.StringFlag{Name: "review", Usage: "Review text"},
				},
				Action: r.AddEntry,
			},
			{
				Name:  "delete",
				Usage: "Delete an entry",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Entry id", Required: true},
				},
				Action: r.DeleteEntry,
			},
		},
	}
}

func wishlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "wishlist",
		Usage: "Books you want to read",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List your wishlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Only the item with this id"},
				},
				Action: r.ListWishlist,
			},
			{
				Name:  "add",
				Usage: "Add a book to the wishlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "Book title", Required: true},
					&cli.StringFlag{Name: "author", Usage: "Book author", Required: true},
					&cli.StringFlag{Name: "note", Usage: "Free-form note"},
				},
				Action: r.AddWishlistItem,
			},
			{
				Name:  "delete",
				Usage: "Remove a book from the wishlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Item id", Required: true},
				},
				Action: r.DeleteWishlistItem,
			},
		},
	}
}

func (r *Runner) ListEntries(ctx context.Context, cmd *cli.Command) error {
	c, err := r.authedClient(ctx, cmd)
	if err != nil {
		return err
	}
	list, err := c.ListEntries(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	return r.writeJSON(list)
}

// entryFields builds the request from the flags that were actually set, so
// unset optional fields stay null.
func entryFields(cmd *cli.Command) entries.Fields {
	fields := entries.Fields{
		Title:  cmd.String("title"),
		Author: cmd.String("author"),
	}
	optString := func(name string) *string {
		if !cmd.IsSet(name) {
			return nil
		}
		v := cmd.String(name)
		return &v
	}
	optInt := func(name string) *int {
		if !cmd.IsSet(name) {
			return nil
		}
		v := int(cmd.Int(name))
		return &v
	}

	fields.Rating = optInt("rating")
	fields.PageNumber = optInt("pages")
	fields.Format = optString("format")
	fields.StartDate = optString("start")
	fields.EndDate = optString("end")
	fields.Genre = optString("genre")
	fields.FavCharacter = optString("fav-character")
	fields.HatedCharacter = optString("hated-character")
	fields.Review = optString("review")
	if cmd.IsSet("recommended") {
		v := cmd.Bool("recommended")
		fields.Recommended = &v
	}
	if cmd.IsSet("phrase") {
		fields.FavPhrases = cmd.StringSlice("phrase")
	}
	return fields
}

func (r *Runner) AddEntry(ctx context.Context, cmd *cli.Command) error {
	c, err := r.authedClient(ctx, cmd)
	if err != nil {
		return err
	}
	entry, err := c.CreateEntry(ctx, entryFields(cmd))
	if err != nil {
		return err
	}
	return r.writeJSON(entry)
}

func (r *Runner) DeleteEntry(ctx context.Context, cmd *cli.Command) error {
	c, err := r.authedClient(ctx, cmd)
	if err != nil {
		return err
	}
	if err := c.DeleteEntry(ctx, cmd.String("id")); err != nil {
		return err
	}
	return r.writePlainln("deleted %s", cmd.String("id"))
}

func (r *Runner) ListWishlist(ctx context.Context, cmd *cli.Command) error {
	c, err := r.authedClient(ctx, cmd)
	if err != nil {
		return err
	}
	items, err := c.ListWishlist(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	return r.writeJSON(items)
}

func (r *Runner) AddWishlistItem(ctx context.Context, cmd *cli.Command) error {
	c, err := r.authedClient(ctx, cmd)
	if err != nil {
		return err
	}
	fields := wishlist.Fields{Title: cmd.String("title"), Author: cmd.String("author")}
	if cmd.IsSet("note") {
		note := cmd.String("note")
		fields.Note = &note
	}
	item, err := c.CreateWishlistItem(ctx, fields)
	if err != nil {
		return err
	}
	return r.writeJSON(item)
}

func (r *Runner) DeleteWishlistItem(ctx context.Context, cmd *cli.Command) error {
	c, err := r.authedClient(ctx, cmd)
	if err != nil {
		return err
	}
	if err := c.DeleteWishlistItem(ctx, cmd.String("id")); err != nil {
		return err
	}
	return r.writePlainln("deleted %s", cmd.String("id"))
}
