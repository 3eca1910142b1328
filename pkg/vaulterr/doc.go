// Package vaulterr implements peervault's error taxonomy: every error a
// component can return outside its own package is a *Error carrying a
// dotted code, a category, a severity, and whether the caller should
// treat it as recoverable.
package vaulterr
