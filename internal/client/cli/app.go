package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophauth/internal/client/api"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

// ErrUsage reports an unknown command or bad arguments.
var ErrUsage = errors.New("usage")

type Client interface {
	Register(ctx context.Context, email string, password []byte) (*api.Tokens, error)
	Login(ctx context.Context, email string, password []byte) (*api.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*api.Tokens, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, accessToken string) (*api.Profile, error)
	LogoutMe(ctx context.Context, accessToken string) error
	ChangePassword(ctx context.Context, accessToken string, oldPassword, newPassword []byte) error
}

type Sessions interface {
	Save(ctx context.Context, sess session.Session) error
	UpdateTokens(ctx context.Context, accessToken, refreshToken string) error
	Load(ctx context.Context) (*session.Session, error)
	Clear(ctx context.Context) error
}

type App struct {
	serverURL string
	api       Client
	sessions  Sessions
	reader    *bufio.Reader
	out       io.Writer
}

func NewApp(serverURL string, c Client, s Sessions, in io.Reader, out io.Writer) *App {
	return &App{
		serverURL: serverURL,
		api:       c,
		sessions:  s,
		reader:    bufio.NewReader(in),
		out:       out,
	}
}

const usage = `usage: authctl [-a url] [-f session.db] [-t seconds] [-c config.json] <command> [args]

commands:
  register [email]   create an account and log in
  login [email]      log in
  refresh            rotate the stored refresh token
  logout             end the current session
  logout-user        revoke the current session using the access token
  whoami             show the logged in user
  passwd             change the password (ends all sessions)
  help               show this message`

// Run executes a single command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "register":
		return a.Register(ctx, rest)
	case "login":
		return a.Login(ctx, rest)
	case "refresh":
		return a.Refresh(ctx)
	case "logout":
		return a.Logout(ctx)
	case "logout-user":
		return a.LogoutUser(ctx)
	case "whoami":
		return a.Whoami(ctx)
	case "passwd":
		return a.Passwd(ctx)
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, usage)
		return nil
	default:
		fmt.Fprintln(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

// authorized calls fn with the stored access token. A 401 triggers one
// rotation and a retry with the new token.
func (a *App) authorized(ctx context.Context, fn func(accessToken string) error) error {
	sess, err := a.sessions.Load(ctx)
	if err != nil {
		return err
	}

	err = fn(sess.AccessToken)
	if !errors.Is(err, common.ErrUnauthorized) {
		return err
	}

	tokens, err := a.rotate(ctx, sess)
	if err != nil {
		return err
	}
	return fn(tokens.AccessToken)
}

// rotate refreshes sess and stores the new pair. A rejected refresh token
// drops the local session since it can never be used again.
func (a *App) rotate(ctx context.Context, sess *session.Session) (*api.Tokens, error) {
	tokens, err := a.api.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrRefreshTokenReuseDetected) || errors.Is(err, common.ErrInvalidRefreshToken) {
			ended := fmt.Errorf("session ended, log in again: %w", err)
			if cerr := a.sessions.Clear(ctx); cerr != nil {
				return nil, errors.Join(ended, fmt.Errorf("clear local session: %w", cerr))
			}
			return nil, ended
		}
		return nil, err
	}
	if err := a.sessions.UpdateTokens(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return nil, err
	}
	return tokens, nil
}
