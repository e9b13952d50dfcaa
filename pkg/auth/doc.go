// Package auth holds the domain types shared by the identity client, the
// token store, the session and the CLI: the signed-in Account, the
// authentication method it used and the token pair issued for it.
package auth
