package utils

import (
	"io"

	"github.com/MrSnakeDoc/sitemeta/internal/logger"
)

// CloseLogged closes c and logs a failure under name. Use in shutdown paths
// where a close error must not abort the remaining cleanup.
func CloseLogged(log logger.Logger, name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("failed to close "+name, logger.Error(err))
		return
	}
	log.Debug(name + " closed")
}
