//go:build !binmap_debug

package opt

const Debug_ = false
