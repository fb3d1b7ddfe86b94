// Package loader registers all built-in cache drivers via blank imports.
// Import it once from main to make the drivers available to cache.New.
package loader

import (
	_ "github.com/wecom-tools/quarkbot/internal/platform/cache/memory"
	_ "github.com/wecom-tools/quarkbot/internal/platform/cache/redis"
)
