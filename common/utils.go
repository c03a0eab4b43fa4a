// Package common provides common utilities for the server
package common

import (
	"strings"
)

// MaskSecret masks sensitive strings for safe logging
// Shows first 4 and last 4 characters for strings longer than 8 chars
// Returns "***" for short strings and "<not set>" for empty strings
//
// Example:
//
//	MaskSecret("") // "<not set>"
//	MaskSecret("short") // "***"
//	MaskSecret("myverylongsecretkey123") // "myve...y123"
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// URLToFilePath turns a repository URL into a flat directory name
//
// Example:
//
//	URLToFilePath("https://github.com/acme/shop.git") // "github.com_acme_shop"
func URLToFilePath(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "git@")
	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, ".git")
	url = strings.ReplaceAll(url, ":", "_")
	return strings.ReplaceAll(url, "/", "_")
}

// Ptr returns a pointer to the given value
// Useful for initializing pointer fields in structs
//
// Example:
//
//	update := tracestore.StepUpdate{Status: common.Ptr(tracestore.StatusSuccess)}
func Ptr[T any](v T) *T {
	return &v
}
