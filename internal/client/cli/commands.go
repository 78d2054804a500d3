package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/api"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

// getPassword is a test seam for GetPassword.
var getPassword = GetPassword

func (a *App) credentials(args []string) (string, []byte, error) {
	var email string
	if len(args) > 0 {
		email = args[0]
	} else {
		var err error
		if email, err = GetSimpleText(a.reader, "Enter email", a.out); err != nil {
			return "", nil, err
		}
	}

	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return "", nil, err
	}
	return email, password, nil
}

func (a *App) startSession(ctx context.Context, email string, tokens *api.Tokens) error {
	return a.sessions.Save(ctx, session.Session{
		ServerURL:    a.serverURL,
		Email:        email,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
}

func (a *App) Register(ctx context.Context, args []string) error {
	email, password, err := a.credentials(args)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	tokens, err := a.api.Register(ctx, email, password)
	if err != nil {
		return err
	}
	if err := a.startSession(ctx, email, tokens); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Registered and logged in as %s\n", email)
	return nil
}

func (a *App) Login(ctx context.Context, args []string) error {
	email, password, err := a.credentials(args)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	tokens, err := a.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := a.startSession(ctx, email, tokens); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Logged in as %s\n", email)
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	sess, err := a.sessions.Load(ctx)
	if err != nil {
		return err
	}
	if _, err := a.rotate(ctx, sess); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Session refreshed")
	return nil
}

// Logout revokes the stored refresh token and forgets the session. The server
// answers 204 either way, so only transport errors are reported.
func (a *App) Logout(ctx context.Context) error {
	sess, err := a.sessions.Load(ctx)
	if err != nil {
		return err
	}
	if err := a.api.Logout(ctx, sess.RefreshToken); err != nil {
		return err
	}
	if err := a.sessions.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) LogoutUser(ctx context.Context) error {
	err := a.authorized(ctx, func(token string) error {
		return a.api.LogoutMe(ctx, token)
	})
	if err != nil {
		return err
	}
	if err := a.sessions.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) Whoami(ctx context.Context) error {
	var me *api.Profile
	err := a.authorized(ctx, func(token string) error {
		var err error
		me, err = a.api.Me(ctx, token)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "id:         %s\n", me.ID)
	fmt.Fprintf(a.out, "email:      %s\n", me.Email)
	fmt.Fprintf(a.out, "active:     %t\n", me.IsActive)
	fmt.Fprintf(a.out, "created at: %s\n", me.CreatedAt.Format(time.RFC3339))
	return nil
}

// Passwd changes the password. The server ends every session, so the local
// one is cleared too.
func (a *App) Passwd(ctx context.Context) error {
	if _, err := a.sessions.Load(ctx); err != nil {
		return err
	}

	oldPassword, err := getPassword("Current password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(oldPassword)

	newPassword, err := getPassword("New password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(newPassword)

	err = a.authorized(ctx, func(token string) error {
		return a.api.ChangePassword(ctx, token, oldPassword, newPassword)
	})
	if err != nil {
		return err
	}
	if err := a.sessions.Clear(ctx); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Password changed, log in again")
	return nil
}
