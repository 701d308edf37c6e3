// Command client is a small CLI over the Quantive API client.
//
//	client -email ada@example.com -password '...' [-register -first Ada -last Lovelace] [-logout]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rryowa/quantive/internal/client"
	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/util"
)

func main() {
	var (
		email    = flag.String("email", "", "account email")
		password = flag.String("password", "", "account password")
		register = flag.Bool("register", false, "create the account before signing in")
		first    = flag.String("first", "", "first name, with -register")
		last     = flag.String("last", "", "last name, with -register")
		logout   = flag.Bool("logout", false, "sign out after printing the profile")
	)
	flag.Parse()

	cfg, err := client.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := util.NewZapLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	c := client.New(cfg, logger)
	ctx := context.Background()

	var signIn client.Result[models.UserResponse]
	if *register {
		signIn = c.Register(ctx, models.RegisterRequest{
			Email:     *email,
			Password:  *password,
			FirstName: *first,
			LastName:  *last,
		})
	} else {
		signIn = c.Login(ctx, *email, *password)
	}
	exitOnFailure(signIn)

	me := c.CurrentUser(ctx)
	exitOnFailure(me)
	user, _ := me.Unwrap()
	fmt.Printf("Signed in as %s %s <%s> (id %d)\n", user.FirstName, user.LastName, user.Email, user.ID)

	if *logout {
		exitOnFailure(c.Logout(ctx))
		fmt.Println("Signed out")
	}
}

func exitOnFailure[T any](r client.Result[T]) {
	msg := client.Match(r,
		func(T) string { return "" },
		func(err error) string { return err.Error() },
		func() string { return "still in progress" },
	)
	if msg != "" {
		fmt.Fprintln(os.Stderr, "error:", msg)
		os.Exit(1)
	}
}
