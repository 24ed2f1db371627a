// Package fourchan implements the read-only wire client for the board API and
// the media host, together with the ledger of last successful thread fetches
// that drives conditional requests.
package fourchan
