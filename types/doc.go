// Package types provides core wire types used across the skillflow framework.
// This package has ZERO dependencies on other skillflow packages to avoid
// circular imports. All other packages should import types from here.
package types
