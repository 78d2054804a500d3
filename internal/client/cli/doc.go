// Package cli implements the authctl commands on top of the HTTP client and
// the local session store.
//
// Commands: register, login, refresh, logout, whoami, passwd, help.
// Commands that need an access token transparently rotate the stored
// refresh token once when the server answers 401.
package cli
