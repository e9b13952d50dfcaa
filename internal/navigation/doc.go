// Package navigation provides the two collaborators the auth core needs from
// its host: a Navigator that moves the user to a URL or application path,
// and a LocaleResolver used to build locale-aware redirect targets.
package navigation
