package storage

import (
	"fmt"
	"strings"

	"github.com/ruteri/sefaz-config-gateway/interfaces"
)

// tempPrefix marks in-flight files so List never reports them.
const tempPrefix = ".tmp-"

// validateKey rejects keys that could escape a backend root or collide with
// temporary files. Keys are slash separated relative paths.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty storage key", interfaces.ErrValidation)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: invalid storage key %q", interfaces.ErrValidation, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." || strings.HasPrefix(segment, tempPrefix) {
			return fmt.Errorf("%w: invalid storage key %q", interfaces.ErrValidation, key)
		}
	}
	return nil
}
