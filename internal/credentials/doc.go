// Package credentials resolves secret references such as env:NAME and
// file:/path into the literal values presented at sign-in.
package credentials
